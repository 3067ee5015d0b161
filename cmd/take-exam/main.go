package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

// take-exam runs one exam session in the terminal against the same storage
// the server uses.
func main() {
	examFlag := flag.String("exam", "", "Exam UUID")
	userID := flag.String("user", "", "Learner ID the attempts are recorded under")
	flag.Parse()

	examID, err := uuid.Parse(*examFlag)
	if err != nil || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: take-exam -exam <uuid> -user <id>")
		os.Exit(2)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	cfg := config.Load()
	// Keep the terminal for the exam; logs go to the file only.
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "take-exam.log"
	}
	log := logger.Setup(cfg.LogLevel, "json", "").Output(logger.RotatingFile(logFile))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Cannot reach PostgreSQL:", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Cannot reach Redis:", err)
		os.Exit(1)
	}
	defer rdb.Close()

	examService := service.NewExamService(
		repository.NewExamRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb, cfg.ExamCacheTTL, log,
	)
	attemptService := service.NewAttemptService(
		repository.NewAttemptRepository(pool),
		repository.NewAttemptStatsRepository(pool),
		rdb, log,
	)
	store := service.NewSessionStore(examService, attemptService)

	ui := newTerminal(os.Stdout, cfg.ExamGraceDelay)
	s := session.New(examID, *userID, store,
		session.WithGraceDelay(cfg.ExamGraceDelay),
		session.WithPersistTimeout(cfg.ExamPersistTimeout),
		session.WithLogger(log),
		session.WithListener(ui),
	)

	lines := readLines(os.Stdin)
	for {
		next, err := ui.run(ctx, s, lines)
		if err != nil {
			if !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
				color.New(color.FgRed).Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			s.Close()
			return
		}
		if next == nil {
			return
		}
		s = next
	}
}

// readLines feeds stdin lines to a channel that closes on EOF.
func readLines(f *os.File) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
