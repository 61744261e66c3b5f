package tarantool

import (
	"fmt"
	"github.com/tarantool/go-tarantool"
	"time"
)

type Config struct {
	Host     string        `yaml:"TARANTOOL_HOST" env:"TARANTOOL_HOST" env-default:"localhost"`
	Port     string        `yaml:"TARANTOOL_PORT" env:"TARANTOOL_PORT" env-default:"3301"`
	Username string        `yaml:"TARANTOOL_USER" env:"TARANTOOL_USER" env-default:"admin"`
	Password string        `yaml:"TARANTOOL_PASSWORD" env:"TARANTOOL_PASSWORD" env-default:"secret"`
	Timeout  time.Duration `yaml:"TARANTOOL_TIMEOUT" env:"TARANTOOL_TIMEOUT" env-default:"5s"`
}

func New(config Config) (*tarantool.Connection, error) {
	conn, err := tarantool.Connect(config.Host+":"+config.Port, tarantool.Opts{
		User:    config.Username,
		Pass:    config.Password,
		Timeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("tarantool: connect to %s:%s: %w", config.Host, config.Port, err)
	}
	return conn, nil
}

// Bootstrap creates the spaces, indexes and sequence used by the election store.
// Safe to call multiple times.
func Bootstrap(conn *tarantool.Connection) error {
	if _, err := conn.Eval(schema, []interface{}{}); err != nil {
		return fmt.Errorf("tarantool: failed to create schema: %w", err)
	}
	return nil
}

const schema = `
box.schema.sequence.create('election_id', {if_not_exists = true})

local elections = box.schema.space.create('elections', {
    if_not_exists = true,
    format = {
        {name = 'id', type = 'unsigned'},
        {name = 'title', type = 'string'},
        {name = 'description', type = 'string'},
        {name = 'creator', type = 'string'},
        {name = 'start_time', type = 'integer'},
        {name = 'end_time', type = 'integer'},
        {name = 'candidate_count', type = 'unsigned'},
    },
})
elections:create_index('primary', {parts = {'id'}, sequence = 'election_id', if_not_exists = true})

local candidates = box.schema.space.create('candidates', {
    if_not_exists = true,
    format = {
        {name = 'election_id', type = 'unsigned'},
        {name = 'idx', type = 'unsigned'},
        {name = 'name', type = 'string'},
        {name = 'description', type = 'string'},
    },
})
candidates:create_index('primary', {parts = {'election_id', 'idx'}, if_not_exists = true})

local votes = box.schema.space.create('votes', {
    if_not_exists = true,
    format = {
        {name = 'election_id', type = 'unsigned'},
        {name = 'voter', type = 'string'},
        {name = 'candidate_idx', type = 'unsigned'},
        {name = 'cast_at', type = 'integer'},
    },
})
votes:create_index('primary', {parts = {'election_id', 'voter'}, if_not_exists = true})
votes:create_index('election_candidate', {parts = {'election_id', 'candidate_idx'}, unique = false, if_not_exists = true})
`
