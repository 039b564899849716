package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
)

type mockCompetitionRepo struct {
	items     map[string]models.Competition
	listCalls int
	findCalls int
	seeded    []models.Competition
}

func newMockCompetitionRepo(items ...models.Competition) *mockCompetitionRepo {
	m := &mockCompetitionRepo{items: make(map[string]models.Competition)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockCompetitionRepo) List(ctx context.Context) ([]models.Competition, error) {
	m.listCalls++
	out := make([]models.Competition, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *mockCompetitionRepo) FindByID(ctx context.Context, id string) (*models.Competition, error) {
	m.findCalls++
	it, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &it, nil
}

func (m *mockCompetitionRepo) Create(ctx context.Context, item *models.Competition) error {
	if item.ID == "" {
		item.ID = "comp-new"
	}
	m.items[item.ID] = *item
	return nil
}

func (m *mockCompetitionRepo) Update(ctx context.Context, item *models.Competition) error {
	if _, ok := m.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	m.items[item.ID] = *item
	return nil
}

func (m *mockCompetitionRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *mockCompetitionRepo) Upsert(ctx context.Context, items []models.Competition) (int, error) {
	m.seeded = append(m.seeded, items...)
	return len(items), nil
}

type mockRegistrationCounter map[string]int

func (m mockRegistrationCounter) CountByCompetition(ctx context.Context, id string) (int, error) {
	return m[id], nil
}

// memoryCacheRepo is a CacheRepository backed by a map of JSON payloads.
type memoryCacheRepo struct {
	data map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo { return &memoryCacheRepo{data: make(map[string][]byte)} }

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

var testAdmin = models.Identity{ID: "admin-1", Role: models.RoleAdmin}

func spring() models.Competition {
	return models.Competition{ID: "c1", Name: "Spring Bowl", Date: "2026-04-12", Location: "Boston", RegistrationFee: 25}
}

func TestCompetitionServiceListIsCachedAndInvalidated(t *testing.T) {
	repo := newMockCompetitionRepo(spring())
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := NewCompetitionService(repo, mockRegistrationCounter{}, &mockAuditRepo{}, cache, time.Minute, validator.New(), zap.NewNop())

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(context.Background(), testAdmin, models.CreateCompetitionRequest{Name: "Fall Cup", Date: "2026-10-01", Location: "Cambridge", RegistrationFee: 30})
	require.NoError(t, err)

	items, err = svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCompetitionServiceGetIsCachedUntilUpdate(t *testing.T) {
	repo := newMockCompetitionRepo(spring())
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := NewCompetitionService(repo, mockRegistrationCounter{}, &mockAuditRepo{}, cache, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.findCalls)

	name := "Spring Bowl Finals"
	_, err = svc.Update(context.Background(), testAdmin, "c1", models.UpdateCompetitionRequest{Name: &name})
	require.NoError(t, err)

	item, err := svc.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Spring Bowl Finals", item.Name)
}

func TestCompetitionServiceCreateValidation(t *testing.T) {
	svc := NewCompetitionService(newMockCompetitionRepo(), mockRegistrationCounter{}, nil, nil, 0, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), testAdmin, models.CreateCompetitionRequest{Name: "Bad Fee", Date: "2026-10-01", Location: "X", RegistrationFee: -1})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), testAdmin, models.CreateCompetitionRequest{Name: "Bad Date", Date: "10/01/2026", Location: "X"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCompetitionServiceUpdateLocksDateAndFee(t *testing.T) {
	repo := newMockCompetitionRepo(spring())
	audit := &mockAuditRepo{}
	svc := NewCompetitionService(repo, mockRegistrationCounter{"c1": 3}, audit, nil, 0, validator.New(), zap.NewNop())

	fee := 40.0
	_, err := svc.Update(context.Background(), testAdmin, "c1", models.UpdateCompetitionRequest{RegistrationFee: &fee})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	same := 25.0
	name := "Spring Bowl 2026"
	updated, err := svc.Update(context.Background(), testAdmin, "c1", models.UpdateCompetitionRequest{Name: &name, RegistrationFee: &same})
	require.NoError(t, err)
	assert.Equal(t, "Spring Bowl 2026", updated.Name)
	assert.Equal(t, []string{models.AuditActionCompetitionUpdate}, audit.actions())
}

func TestCompetitionServiceUpdateUnregisteredAllowsDate(t *testing.T) {
	svc := NewCompetitionService(newMockCompetitionRepo(spring()), mockRegistrationCounter{}, nil, nil, 0, validator.New(), zap.NewNop())
	date := "2026-05-01"
	updated, err := svc.Update(context.Background(), testAdmin, "c1", models.UpdateCompetitionRequest{Date: &date})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", updated.Date)

	_, err = svc.Update(context.Background(), testAdmin, "missing", models.UpdateCompetitionRequest{Date: &date})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCompetitionServiceDelete(t *testing.T) {
	repo := newMockCompetitionRepo(spring(), models.Competition{ID: "c2", Name: "Empty", Date: "2026-06-01"})
	svc := NewCompetitionService(repo, mockRegistrationCounter{"c1": 1}, &mockAuditRepo{}, nil, 0, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), testAdmin, "c1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	require.NoError(t, svc.Delete(context.Background(), testAdmin, "c2"))
	_, ok := repo.items["c2"]
	assert.False(t, ok)
}

func TestCompetitionServiceSeed(t *testing.T) {
	repo := newMockCompetitionRepo()
	svc := NewCompetitionService(repo, mockRegistrationCounter{}, nil, nil, 0, validator.New(), zap.NewNop())

	n, err := svc.Seed(context.Background(), []models.CreateCompetitionRequest{
		{Name: "Spring Bowl", Date: "2026-04-12", Location: "Boston", RegistrationFee: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, repo.seeded, 1)
	assert.Equal(t, "Spring Bowl", repo.seeded[0].Name)
}
