package delivery

import (
	"context"
	"log/slog"

	"github.com/STRATINT/newsdesk/internal/models"
)

// Publisher hands newly persisted articles to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, articles []models.Article) error
	Close() error
}

// LogPublisher only logs each article. It is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, articles []models.Article) error {
	for _, a := range articles {
		p.logger.Info("article published", "url", a.URL, "source", a.Source, "title", a.Title)
	}
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
