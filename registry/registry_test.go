package registry

import (
	"context"
	"testing"
	"time"

	"github.com/JiscSD/ram-relationships/model"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sourceMock struct {
	mock.Mock
}

func (m *sourceMock) ListAgencies(ctx context.Context) ([]model.Agency, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Agency), args.Error(1)
}

func TestRegistry(t *testing.T) {
	m := &sourceMock{}
	m.On("ListAgencies", mock.Anything).Return([]model.Agency{
		{ID: "ATO", Name: "Tax Office", LegislativePrograms: []model.LegislativeProgram{{Name: "Tax"}, {Name: "Super"}}},
		{ID: "DHS", Name: "Human Services"},
	}, nil)

	r, err := New(logrus.StandardLogger(), m, time.Hour)
	require.NoError(t, err)
	defer r.Stop()
	m.AssertNumberOfCalls(t, "ListAgencies", 1)

	a, ok := r.Get("ATO")
	assert.True(t, ok)
	assert.Equal(t, "Tax Office", a.Name)

	programs, err := r.Programs(context.Background(), "ATO")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tax", "Super"}, programs)

	programs, err = r.Programs(context.Background(), "DHS")
	require.NoError(t, err)
	assert.Empty(t, programs)

	_, err = r.Programs(context.Background(), "XXX")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRegistry_Reload(t *testing.T) {
	m := &sourceMock{}
	m.On("ListAgencies", mock.Anything).Return([]model.Agency{{ID: "ATO"}}, nil).Once()
	m.On("ListAgencies", mock.Anything).Return([]model.Agency{{ID: "ATO"}, {ID: "DHS"}}, nil)

	r, err := New(logrus.StandardLogger(), m, time.Hour)
	require.NoError(t, err)
	defer r.Stop()

	_, ok := r.Get("DHS")
	assert.False(t, ok)

	r.Reload()
	assert.Eventually(t, func() bool {
		_, ok := r.Get("DHS")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_ReloadFailureKeepsEntries(t *testing.T) {
	logger, hook := test.NewNullLogger()
	m := &sourceMock{}
	m.On("ListAgencies", mock.Anything).Return([]model.Agency{{ID: "ATO"}}, nil).Once()
	m.On("ListAgencies", mock.Anything).Return([]model.Agency(nil), errors.New("table gone"))

	r, err := New(logger, m, 5*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return hook.LastEntry() != nil
	}, time.Second, 5*time.Millisecond)
	r.Stop()

	_, ok := r.Get("ATO")
	assert.True(t, ok)
}

func TestRegistry_InitialLoadFailure(t *testing.T) {
	m := &sourceMock{}
	m.On("ListAgencies", mock.Anything).Return([]model.Agency(nil), errors.New("table gone"))

	r, err := New(logrus.StandardLogger(), m, time.Hour)
	assert.Nil(t, r)
	assert.EqualError(t, err, "registry failed to load from source: table gone")
}
