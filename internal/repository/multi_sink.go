package repository

import (
	"context"

	"github.com/google/uuid"

	"SMCScan/internal/domain/models"
	domrepo "SMCScan/internal/domain/repository"
	applogger "SMCScan/pkg/logger"
)

// SetupPublisher fans a saved setup out to an event stream.
type SetupPublisher interface {
	PublishSetup(ctx context.Context, id string, setup models.Setup, score float64) error
}

// MultiSink saves to the journal, when one is configured, and then publishes
// the setup. Publish failures are logged and do not fail Save.
type MultiSink struct {
	journal domrepo.SetupSink
	pubs    []SetupPublisher
	l       *applogger.Logger
}

func NewMultiSink(journal domrepo.SetupSink, l *applogger.Logger, pubs ...SetupPublisher) *MultiSink {
	if l == nil {
		l = applogger.Nop()
	}
	return &MultiSink{journal: journal, pubs: pubs, l: l.With("setup-sink")}
}

func (m *MultiSink) Save(ctx context.Context, setup models.Setup, score float64) (string, error) {
	id := setup.ID
	if m.journal != nil {
		var err error
		if id, err = m.journal.Save(ctx, setup, score); err != nil {
			return "", err
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	setup.ID = id
	for _, p := range m.pubs {
		if err := p.PublishSetup(ctx, id, setup, score); err != nil {
			m.l.Warn("setup publish failed",
				applogger.String("id", id),
				applogger.String("symbol", setup.Symbol),
				applogger.Error(err))
		}
	}
	return id, nil
}

// NopSink discards setups.
type NopSink struct{}

func (NopSink) Save(context.Context, models.Setup, float64) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ domrepo.SetupSink = (*MultiSink)(nil)
	_ domrepo.SetupSink = NopSink{}
)
