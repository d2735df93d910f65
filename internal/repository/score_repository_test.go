package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/omr-grade-api/internal/models"
)

func TestScoreRepositoryUpsertNewRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	created := time.Now().Add(-time.Hour)
	mock.ExpectQuery("INSERT INTO scores").
		WillReturnRows(sqlmock.NewRows([]string{"id", "processed_seq", "created_at"}).
			AddRow("score-1", int64(7), created))

	score := &models.Score{
		ExamID:    "exam-1",
		StudentID: "stu-1",
		SetCode:   "A",
		RawScore:  3,
		Percent:   75,
		Breakdown: models.Breakdown{{Item: 1, Answer: "A", Key: "A", Correct: true}},
	}
	require.NoError(t, repo.Upsert(context.Background(), score))

	assert.Equal(t, "score-1", score.ID)
	assert.Equal(t, int64(7), score.ProcessedSeq)
	assert.Equal(t, created, score.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryUpsertStaleWriteIsDropped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	// the conditional update matched no row: a newer write already landed
	mock.ExpectQuery("INSERT INTO scores").
		WillReturnRows(sqlmock.NewRows([]string{"id", "processed_seq", "created_at"}))

	score := &models.Score{ExamID: "exam-1", StudentID: "stu-1", SetCode: "A"}
	require.NoError(t, repo.Upsert(context.Background(), score), "stale writes are silently dropped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryRowsByExam(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectQuery("JOIN students st ON st.id = sc.student_id").
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_number", "full_name", "set_code", "raw_score", "percent"}).
			AddRow("stu-1", "1001", "Student One", "A", 3, 75.0).
			AddRow("stu-2", "1002", "Student Two", "B", 2, 50.0))

	rows, err := repo.RowsByExam(context.Background(), "exam-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1001", rows[0].StudentNumber)
	assert.Equal(t, 75.0, rows[0].Percent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepositoryListByExam(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM scores WHERE exam_id = \\$1 ORDER BY updated_at DESC").
		WithArgs("exam-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "exam_id", "student_id", "set_code", "raw_score", "percent",
			"breakdown", "source_scan_id", "processed_seq", "created_at", "updated_at",
		}).AddRow("score-1", "exam-1", "stu-1", "A", 3, 75.0,
			[]byte(`[{"item":1,"answer":"A","key":"A","correct":true}]`), nil, int64(1), now, now))

	scores, err := repo.ListByExam(context.Background(), "exam-1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Len(t, scores[0].Breakdown, 1)
	assert.True(t, scores[0].Breakdown[0].Correct)
	assert.NoError(t, mock.ExpectationsWereMet())
}
