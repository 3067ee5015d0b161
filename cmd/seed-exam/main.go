package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/scoring"
	"github.com/stemsi/exstem-session/internal/service"
)

func main() {
	minutes := flag.Int("minutes", 10, "Exam duration in minutes")
	maxScore := flag.Int("max-score", 100, "Maximum score")
	replaceID := flag.String("id", "", "Existing exam UUID to overwrite instead of creating a new exam")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	exam := &model.ExamDefinition{
		Title:           "Matematika Dasar",
		DurationMinutes: *minutes,
		MaxScore:        *maxScore,
		Questions: []model.Question{
			{Prompt: "Berapakah 7 x 8?", Type: model.QuestionTypeMultipleChoice, Options: []string{"54", "56", "58", "64"}, Answer: "56"},
			{Prompt: "Akar kuadrat dari 144 adalah?", Type: model.QuestionTypeMultipleChoice, Options: []string{"11", "12", "13", "14"}, Answer: "12"},
			{Prompt: "Hasil dari 15% x 200?", Type: model.QuestionTypeMultipleChoice, Options: []string{"15", "20", "30", "35"}, Answer: "30"},
			{Prompt: "Bilangan prima terkecil?", Type: model.QuestionTypeMultipleChoice, Options: []string{"0", "1", "2", "3"}, Answer: "2"},
			{Prompt: "Tulis hasil 2 pangkat 10.", Type: model.QuestionTypeFreeText, Answer: "1024"},
		},
	}

	if err := scoring.Validate(exam); err != nil {
		log.Fatal().Err(err).Msg("Seed exam is invalid")
	}

	fmt.Println("=== Seeding Exam ===")
	replacing := *replaceID != ""
	if replacing {
		id, err := uuid.Parse(*replaceID)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -id")
		}
		exam.ID = id
		if err := examRepo.Replace(ctx, exam); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				log.Fatal().Str("exam_id", id.String()).Msg("Exam does not exist")
			}
			log.Fatal().Err(err).Msg("Failed to replace exam")
		}
		fmt.Printf("Replaced exam %q with ID: %s (%d questions)\n", exam.Title, exam.ID, len(exam.Questions))
	} else {
		if err := examRepo.Create(ctx, exam); err != nil {
			log.Fatal().Err(err).Msg("Failed to create exam")
		}
		fmt.Printf("Created exam %q with ID: %s (%d questions)\n", exam.Title, exam.ID, len(exam.Questions))
	}

	// Warm the cache when Redis is reachable; the service self-heals otherwise.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		fmt.Println("Redis unavailable, skipping cache warm-up")
		return
	}
	defer rdb.Close()

	examService := service.NewExamService(examRepo, questionRepo, rdb, cfg.ExamCacheTTL, log)
	warm := examService.WarmExamCache
	if replacing {
		warm = examService.Refresh
	}
	if err := warm(ctx, exam.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to warm exam cache")
		return
	}
	fmt.Println("Exam cached in Redis.")
}
