package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeExamDB struct {
	exams     map[uuid.UUID]model.ExamDefinition
	questions map[uuid.UUID][]model.Question
	examReads int
	failReads bool
}

func (f *fakeExamDB) GetByID(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	f.examReads++
	if f.failReads {
		return nil, errors.New("db down")
	}
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeExamDB) ListIDs(context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(f.exams))
	for id := range f.exams {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeExamDB) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.questions[examID], nil
}

func seededExamDB() (*fakeExamDB, uuid.UUID) {
	id := uuid.New()
	return &fakeExamDB{
		exams: map[uuid.UUID]model.ExamDefinition{
			id: {ID: id, Title: "Biology", DurationMinutes: 45, MaxScore: 100},
		},
		questions: map[uuid.UUID][]model.Question{
			id: {
				{Prompt: "Cell powerhouse?", Type: model.QuestionTypeMultipleChoice, Options: []string{"Mitochondria", "Nucleus"}, Answer: "Mitochondria"},
				{Prompt: "H2O is?", Type: model.QuestionTypeFreeText, Answer: "water"},
			},
		},
	}, id
}

func TestExamService_LoadExamCachesAndHeals(t *testing.T) {
	mr, rdb := newRedis(t)
	db, id := seededExamDB()
	svc := NewExamService(db, db, rdb, time.Hour, zerolog.Nop())
	ctx := context.Background()

	def, err := svc.LoadExam(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Biology", def.Title)
	require.Len(t, def.Questions, 2)
	assert.Equal(t, 1, db.examReads)

	key := config.CacheKey.ExamDefinitionKey(id.String())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	// Served from Redis.
	_, err = svc.LoadExam(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, db.examReads)

	// Evicted → PostgreSQL again, then re-cached.
	mr.Del(key)
	_, err = svc.LoadExam(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, db.examReads)
	assert.True(t, mr.Exists(key))
}

func TestExamService_RedisDownFallsBack(t *testing.T) {
	mr, rdb := newRedis(t)
	db, id := seededExamDB()
	svc := NewExamService(db, db, rdb, 0, zerolog.Nop())

	mr.SetError("LOADING")
	def, err := svc.LoadExam(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Biology", def.Title)
}

func TestExamService_NotFound(t *testing.T) {
	_, rdb := newRedis(t)
	db, _ := seededExamDB()
	svc := NewExamService(db, db, rdb, 0, zerolog.Nop())

	_, err := svc.LoadExam(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrExamNotFound)

	db.failReads = true
	_, err = svc.LoadExam(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExamNotFound)
}

func TestExamService_PaperHasNoAnswers(t *testing.T) {
	mr, rdb := newRedis(t)
	db, id := seededExamDB()
	svc := NewExamService(db, db, rdb, 0, zerolog.Nop())

	paper, err := svc.GetPaper(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, paper.Questions, 2)
	assert.Equal(t, []string{"Mitochondria", "Nucleus"}, paper.Questions[0].Options)

	raw, err := mr.Get(config.CacheKey.ExamPaperKey(id.String()))
	require.NoError(t, err)
	assert.NotContains(t, raw, `"answer"`)
}

func TestExamService_InvalidateAndPrewarm(t *testing.T) {
	mr, rdb := newRedis(t)
	db, id := seededExamDB()
	svc := NewExamService(db, db, rdb, 0, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.PrewarmAllCaches(ctx))
	assert.True(t, mr.Exists(config.CacheKey.ExamDefinitionKey(id.String())))

	require.NoError(t, svc.Invalidate(ctx, id))
	assert.False(t, mr.Exists(config.CacheKey.ExamDefinitionKey(id.String())))
	assert.False(t, mr.Exists(config.CacheKey.ExamPaperKey(id.String())))
}

func TestExamService_RefreshReplacesStaleCopy(t *testing.T) {
	mr, rdb := newRedis(t)
	db, id := seededExamDB()
	svc := NewExamService(db, db, rdb, 0, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.LoadExam(ctx, id)
	require.NoError(t, err)

	e := db.exams[id]
	e.Title = "Biology II"
	db.exams[id] = e
	db.questions[id][0].Answer = "Nucleus"

	require.NoError(t, svc.Refresh(ctx, id))
	def, err := svc.LoadExam(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Biology II", def.Title)
	assert.Equal(t, "Nucleus", def.Questions[0].Answer)

	// A failed reload still drops the stale entry.
	db.failReads = true
	require.Error(t, svc.Refresh(ctx, id))
	assert.False(t, mr.Exists(config.CacheKey.ExamDefinitionKey(id.String())))
	assert.False(t, mr.Exists(config.CacheKey.ExamPaperKey(id.String())))
}

type fakeAttemptDB struct {
	records  []model.AttemptRecord
	failErr  error
	stats    map[repository.StatsKey]model.AttemptStats
	statsErr error
}

func (f *fakeAttemptDB) Get(_ context.Context, examID uuid.UUID, userID string) (*model.AttemptStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	st, ok := f.stats[repository.StatsKey{ExamID: examID, UserID: userID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &st, nil
}

func (f *fakeAttemptDB) Create(_ context.Context, a *model.AttemptRecord) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.records = append(f.records, *a)
	return nil
}

func (f *fakeAttemptDB) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAttemptDB) ListByExamAndUser(_ context.Context, examID uuid.UUID, userID string) ([]model.AttemptRecord, error) {
	var out []model.AttemptRecord
	for _, r := range f.records {
		if r.ExamID == examID && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAttemptDB) ListByExamAndUserPaginated(ctx context.Context, examID uuid.UUID, userID string, limit, offset int) ([]model.AttemptRecord, int, error) {
	all, _ := f.ListByExamAndUser(ctx, examID, userID)
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func TestAttemptService_CreateQueuesStats(t *testing.T) {
	mr, rdb := newRedis(t)
	db := &fakeAttemptDB{}
	svc := NewAttemptService(db, db, rdb, zerolog.Nop())

	rec := &model.AttemptRecord{ID: uuid.New(), ExamID: uuid.New(), UserID: "u-1", Score: 8}
	require.NoError(t, svc.CreateAttemptRecord(context.Background(), rec))
	require.Len(t, db.records, 1)

	items, err := mr.List(config.WorkerKey.PersistAttemptStatsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var key repository.StatsKey
	require.NoError(t, json.Unmarshal([]byte(items[0]), &key))
	assert.Equal(t, rec.ExamID, key.ExamID)
	assert.Equal(t, "u-1", key.UserID)
}

func TestAttemptService_CreateFailureIsReturned(t *testing.T) {
	mr, rdb := newRedis(t)
	db := &fakeAttemptDB{failErr: errors.New("disk full")}
	svc := NewAttemptService(db, db, rdb, zerolog.Nop())

	err := svc.CreateAttemptRecord(context.Background(), &model.AttemptRecord{ID: uuid.New()})
	require.Error(t, err)
	assert.False(t, mr.Exists(config.WorkerKey.PersistAttemptStatsQueue))
}

func TestAttemptService_QueueFailureDoesNotFailWrite(t *testing.T) {
	mr, rdb := newRedis(t)
	db := &fakeAttemptDB{}
	svc := NewAttemptService(db, db, rdb, zerolog.Nop())

	mr.SetError("READONLY")
	require.NoError(t, svc.CreateAttemptRecord(context.Background(), &model.AttemptRecord{ID: uuid.New()}))
	assert.Len(t, db.records, 1)
}

func TestAttemptService_ListHistoryPaginates(t *testing.T) {
	_, rdb := newRedis(t)
	examID := uuid.New()
	db := &fakeAttemptDB{}
	for i := 0; i < 12; i++ {
		db.records = append(db.records, model.AttemptRecord{ID: uuid.New(), ExamID: examID, UserID: "u-1"})
	}
	svc := NewAttemptService(db, db, rdb, zerolog.Nop())

	page, p, err := svc.ListHistory(context.Background(), examID, "u-1", 2, 5)
	require.NoError(t, err)
	assert.Len(t, page, 5)
	assert.Equal(t, 12, p.TotalItems)
	assert.Equal(t, 3, p.TotalPages)

	empty, _, err := svc.ListHistory(context.Background(), examID, "nobody", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestAttemptService_Stats(t *testing.T) {
	_, rdb := newRedis(t)
	examID := uuid.New()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	db := &fakeAttemptDB{stats: map[repository.StatsKey]model.AttemptStats{
		{ExamID: examID, UserID: "u-1"}: {
			ExamID: examID, UserID: "u-1", AttemptCount: 3, BestScore: 9, LastScore: 6,
			EverPassed: true, LastAttemptAt: &at,
		},
	}}
	svc := NewAttemptService(db, db, rdb, zerolog.Nop())
	ctx := context.Background()

	st, err := svc.Stats(ctx, examID, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.AttemptCount)
	assert.Equal(t, 9, st.BestScore)
	assert.True(t, st.EverPassed)

	// No row yet: zero aggregate, not an error.
	st, err = svc.Stats(ctx, examID, "u-2")
	require.NoError(t, err)
	assert.Equal(t, 0, st.AttemptCount)
	assert.Nil(t, st.LastAttemptAt)
	assert.Equal(t, "u-2", st.UserID)

	db.statsErr = errors.New("db down")
	_, err = svc.Stats(ctx, examID, "u-1")
	assert.Error(t, err)
}

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestIdentityService_ValidateToken(t *testing.T) {
	svc := NewIdentityService("secret")
	now := time.Now()

	tok := signToken(t, "secret", Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "learner-42",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}})
	claims, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "learner-42", claims.UserID())

	expired := signToken(t, "secret", Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "learner-42",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}})
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	wrongKey := signToken(t, "other", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
	_, err = svc.ValidateToken(wrongKey)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	noSubject := signToken(t, "secret", Claims{})
	_, err = svc.ValidateToken(noSubject)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
