package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAssignsUniqueID(t *testing.T) {
	a := New("127.0.0.1:5432")
	b := New("127.0.0.1:5433")
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
}

func TestParametersRoundtrip(t *testing.T) {
	s := New("127.0.0.1:5432")
	s.SetParameter("user", "postgres")
	s.SetParameter("database", "imoocdb")

	v, ok := s.Parameter("user")
	require.True(t, ok)
	require.Equal(t, "postgres", v)
	require.Equal(t, "postgres", s.User())
	require.Equal(t, "imoocdb", s.Database())

	_, ok = s.Parameter("application_name")
	require.False(t, ok)
}

func TestDatabaseDefaultsToUser(t *testing.T) {
	s := New("127.0.0.1:5432")
	s.SetParameter("user", "postgres")
	require.Equal(t, "postgres", s.Database())
}

func TestContextRoundtrip(t *testing.T) {
	s := New("127.0.0.1:5432")
	ctx := WithSession(context.Background(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, s.ID(), got.ID())

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}
