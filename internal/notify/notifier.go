package notify

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/report"
)

const DefaultConcurrency = 4

type SubscriberStore interface {
	ListSubscribers(ctx context.Context, titleID string) ([]db.User, error)
}

// Channel is one way of reaching a subscriber.
type Channel interface {
	Name() string
	// Enabled reports whether u has configured this channel.
	Enabled(u db.User) bool
	Send(ctx context.Context, u db.User, title db.Title, ep db.Episode) error
}

// Summary counts the deliveries of one Notify call.
type Summary struct {
	Subscribers int
	Attempted   int
	Failed      int
}

func (s Summary) Add(o Summary) Summary {
	return Summary{
		Subscribers: s.Subscribers + o.Subscribers,
		Attempted:   s.Attempted + o.Attempted,
		Failed:      s.Failed + o.Failed,
	}
}

type Notifier struct {
	store       SubscriberStore
	channels    []Channel
	concurrency int
	sink        report.Sink
	log         zerolog.Logger
}

func New(store SubscriberStore, sink report.Sink, concurrency int, channels ...Channel) *Notifier {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if sink == nil {
		sink = report.Discard
	}
	return &Notifier{
		store:       store,
		channels:    channels,
		concurrency: concurrency,
		sink:        sink,
		log:         logger.With("notify"),
	}
}

// Notify announces a single episode to every subscriber of title.
func (n *Notifier) Notify(ctx context.Context, title db.Title, ep db.Episode) Summary {
	return n.NotifyAll(ctx, title, []db.Episode{ep})
}

// NotifyAll announces eps to every subscriber of title over each channel
// they configured. Deliveries are independent; a failed one is reported and
// counted but does not stop the others.
func (n *Notifier) NotifyAll(ctx context.Context, title db.Title, eps []db.Episode) Summary {
	if len(eps) == 0 {
		return Summary{}
	}

	users, err := n.store.ListSubscribers(ctx, title.ID)
	if err != nil {
		n.log.Error().Err(err).Str("title_id", title.ID).Msg("Failed to list subscribers")
		n.sink.Capture(err, report.Fields{"title_id": title.ID, "op": "list_subscribers"})
		return Summary{}
	}
	if len(users) == 0 {
		return Summary{}
	}

	var (
		g         errgroup.Group
		attempted atomic.Int64
		failed    atomic.Int64
	)
	g.SetLimit(n.concurrency)

	for _, ep := range eps {
		for _, u := range users {
			for _, ch := range n.channels {
				if !ch.Enabled(u) {
					continue
				}
				attempted.Add(1)
				ep, u, ch := ep, u, ch
				g.Go(func() error {
					if err := ch.Send(ctx, u, title, ep); err != nil {
						failed.Add(1)
						n.log.Warn().Err(err).Str("channel", ch.Name()).Str("user", u.Username).
							Str("title_id", title.ID).Int("episode", ep.Number).Msg("Delivery failed")
						n.sink.Capture(err, report.Fields{
							"channel":  ch.Name(),
							"user":     u.Username,
							"title_id": title.ID,
							"episode":  ep.Number,
							"dub":      ep.Dub,
						})
					}
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	s := Summary{
		Subscribers: len(users),
		Attempted:   int(attempted.Load()),
		Failed:      int(failed.Load()),
	}
	n.log.Info().Str("title_id", title.ID).Int("episodes", len(eps)).Int("subscribers", s.Subscribers).
		Int("attempted", s.Attempted).Int("failed", s.Failed).Msg("Notifications sent")
	return s
}
