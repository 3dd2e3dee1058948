package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"portfolio/internal/timeframe"
)

func TestParseArgs(t *testing.T) {
	name, args := parseArgs(nil)
	assert.Equal(t, "help", name)
	assert.Empty(t, args)

	name, args = parseArgs([]string{"stats", "7d"})
	assert.Equal(t, "stats", name)
	assert.Equal(t, []string{"7d"}, args)
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"migrate", "seed", "status", "hash-password", "stats", "realtime", "help"} {
		require.NotNil(t, findCommand(name), name)
	}
	assert.Nil(t, findCommand("create-admin-user"))
	assert.False(t, needsApp(findCommand("hash-password")))
	assert.True(t, needsApp(findCommand("stats")))
}

func TestHashPasswordCommand(t *testing.T) {
	t.Run("reads the password from piped input", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &HashPasswordCommand{in: strings.NewReader("hunter2\n"), out: &out}

		require.NoError(t, cmd.Execute(context.Background(), nil, nil))

		hash := strings.TrimSpace(out.String())
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
	})

	t.Run("accepts the password as an argument", func(t *testing.T) {
		var out bytes.Buffer
		cmd := &HashPasswordCommand{in: strings.NewReader(""), out: &out}

		require.NoError(t, cmd.Execute(context.Background(), nil, []string{"s3cret"}))
		assert.True(t, strings.HasPrefix(out.String(), "$2a$"))
	})

	t.Run("rejects an empty password", func(t *testing.T) {
		cmd := &HashPasswordCommand{in: strings.NewReader("\n"), out: &bytes.Buffer{}}
		assert.Error(t, cmd.Execute(context.Background(), nil, nil))
	})
}

func TestStatsCommandRejectsUnknownRange(t *testing.T) {
	cmd := &StatsCommand{out: &bytes.Buffer{}}

	err := cmd.Execute(context.Background(), nil, []string{"1y"})
	assert.True(t, errors.Is(err, timeframe.ErrInvalidRange))

	err = cmd.Execute(context.Background(), nil, []string{"7d"})
	assert.ErrorContains(t, err, "app initialization failed")
}

func TestHelpCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&HelpCommand{out: &out}).Execute(context.Background(), nil, nil))

	assert.Contains(t, out.String(), "Usage: portfolioctl")
	assert.Contains(t, out.String(), "hash-password:")
}
