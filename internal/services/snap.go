package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"

	"anon-social-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// SnapConfig tunes fan-out
type SnapConfig struct {
	Workers       int
	DedupeWindow  time.Duration
	RatePerMinute int
	Burst         int
}

// SnapRequest is a snap broadcast request
type SnapRequest struct {
	Gender      models.GenderFilter `json:"gender"`
	ImageBase64 string              `json:"image_base64"`
}

// SnapService broadcasts anonymous snaps to second-degree connections
type SnapService struct {
	users     ProfileStore
	convs     ConversationStore
	messages  MessageStore
	detector  FaceDetector
	archive   MediaArchive
	notifier  Notifier
	publisher EventPublisher
	snapshots ConversationPublisher
	cfg       SnapConfig
	now       func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*senderLimiter
	lastSweep  time.Time
}

// senderLimiter is one sender's token bucket and when it was last used
type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSnapService creates a new snap service. archive and snapshots may be nil.
func NewSnapService(
	users ProfileStore,
	convs ConversationStore,
	messages MessageStore,
	detector FaceDetector,
	archive MediaArchive,
	notifier Notifier,
	publisher EventPublisher,
	snapshots ConversationPublisher,
	cfg SnapConfig,
) *SnapService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 10 * time.Minute
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SnapService{
		users:     users,
		convs:     convs,
		messages:  messages,
		detector:  detector,
		archive:   archive,
		notifier:  notifier,
		publisher: publisher,
		snapshots: snapshots,
		cfg:       cfg,
		now:       time.Now,
		limiters:  make(map[string]*senderLimiter),
	}
}

// Send gates the image on face presence, selects the audience and delivers
// one anonymous message per recipient. Individual delivery failures are
// reported in the returned report, never as an error.
func (s *SnapService) Send(ctx context.Context, senderID string, req SnapRequest) (*models.FanoutReport, error) {
	report, err := s.send(ctx, senderID, req)
	snapFanouts.WithLabelValues(fanoutLabel(report, err)).Inc()
	return report, err
}

func (s *SnapService) send(ctx context.Context, senderID string, req SnapRequest) (*models.FanoutReport, error) {
	if !req.Gender.Valid() {
		return nil, models.Validation("gender must be male, female or both")
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		return nil, models.Validation("image_base64 must be a non-empty base64 image")
	}

	// Peek first and charge only once the image passed the gate
	limiter := s.limiterFor(senderID)
	if limiter != nil && limiter.TokensAt(s.now()) < 1 {
		return nil, models.RateLimited("too many snaps, try again later")
	}

	faces, err := s.detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to run face detection: %w", err)
	}
	if len(faces) == 0 {
		return nil, models.PreconditionFailed("no face detected")
	}

	if limiter != nil && !limiter.AllowN(s.now(), 1) {
		return nil, models.RateLimited("too many snaps, try again later")
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	recipients, err := s.Audience(ctx, sender, req.Gender)
	if err != nil {
		return nil, err
	}
	snapAudience.Observe(float64(len(recipients)))

	snapID := SnapID(senderID, image)
	if s.archive != nil {
		if err := s.archive.Archive(ctx, SnapObjectKey(senderID, snapID), image); err != nil {
			log.Warn().Err(err).Str("snap_id", snapID).Msg("Failed to archive snap")
		}
	}

	sentAt := s.now()
	report := &models.FanoutReport{
		SnapID:   snapID,
		Outcomes: make([]models.DeliveryOutcome, len(recipients)),
		SentAt:   sentAt,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, recipient := range recipients {
		g.Go(func() error {
			report.Outcomes[i] = s.deliver(gctx, sender, recipient, snapID, req.ImageBase64, sentAt)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		if o.Delivered {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	log.Info().
		Str("user_id", senderID).
		Str("snap_id", snapID).
		Str("gender", string(req.Gender)).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("Snap sent")

	return report, nil
}

// Audience computes the filtered second-degree recipients of a sender.
// Profiles, including gender, are read at call time.
func (s *SnapService) Audience(ctx context.Context, sender *models.User, filter models.GenderFilter) ([]*models.User, error) {
	if len(sender.Friends) == 0 {
		return nil, models.EmptyAudience("add friends before sending a snap")
	}

	friends, err := s.users.GetByIDs(ctx, sender.Friends)
	if err != nil {
		return nil, fmt.Errorf("failed to load friends: %w", err)
	}

	candidateIDs := SecondDegree(sender, friends)
	if len(candidateIDs) == 0 {
		return nil, models.EmptyAudience("no second-degree friends to send to")
	}

	candidates, err := s.users.GetByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load second-degree friends: %w", err)
	}

	recipients := FilterByGender(candidates, filter)
	if len(recipients) == 0 {
		return nil, models.EmptyAudience("no second-degree friends match the selected gender")
	}
	return recipients, nil
}

// SecondDegree returns the sorted ids reachable through exactly one of the
// sender's friends, excluding the sender and their direct friends
func SecondDegree(sender *models.User, friends []*models.User) []string {
	exclude := make(map[string]struct{}, len(sender.Friends)+1)
	exclude[sender.ID] = struct{}{}
	for _, id := range sender.Friends {
		exclude[id] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, f := range friends {
		if _, direct := exclude[f.ID]; !direct {
			continue
		}
		for _, id := range f.Friends {
			if _, skip := exclude[id]; skip {
				continue
			}
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// FilterByGender keeps the users whose stored gender passes filter, sorted by id
func FilterByGender(users []*models.User, filter models.GenderFilter) []*models.User {
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if filter.Matches(u.Gender) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b *models.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// SnapID derives a deterministic id from the sender and the image bytes
func SnapID(senderID string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(senderID))
	h.Write([]byte{0})
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}

// DedupeKey identifies one delivery of a snap to a recipient within a time window
func DedupeKey(snapID, recipientID string, at time.Time, window time.Duration) string {
	return fmt.Sprintf("snap:%s:%s:%d", snapID, recipientID, at.UnixNano()/int64(window))
}

func (s *SnapService) deliver(ctx context.Context, sender, recipient *models.User, snapID, imageBase64 string, sentAt time.Time) models.DeliveryOutcome {
	outcome := models.DeliveryOutcome{RecipientID: recipient.ID}

	conv, _, err := s.convs.GetOrCreate(ctx, sender.ID, recipient.ID, true)
	if err != nil {
		return s.failed(outcome, err)
	}
	outcome.ConversationID = conv.ID

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		ImageBase64:    imageBase64,
		SenderID:       sender.ID,
		SenderName:     models.AnonymousName,
		IsAnonymous:    true,
		DedupeKey:      DedupeKey(snapID, recipient.ID, sentAt, s.cfg.DedupeWindow),
	}
	inserted, err := s.messages.Create(ctx, msg)
	if err != nil {
		return s.failed(outcome, err)
	}

	outcome.Delivered = true
	outcome.Duplicate = !inserted
	if outcome.Duplicate {
		snapDeliveries.WithLabelValues("duplicate").Inc()
		return outcome
	}
	snapDeliveries.WithLabelValues("delivered").Inc()

	if s.snapshots != nil {
		if err := s.snapshots.MessageDelivered(ctx, conv); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("Failed to refresh conversation after snap")
		}
	}

	if s.publisher != nil && s.publisher.IsOnline(recipient.ID) {
		event := WSMessage{Type: WSTypeSnapReceived, ConversationID: conv.ID}
		if err := s.publisher.SendToUser(recipient.ID, event); err != nil {
			log.Error().Err(err).Str("recipient_id", recipient.ID).Msg("Failed to send snap_received")
		}
	} else if err := s.notifier.NotifySnap(ctx, recipient); err != nil {
		log.Warn().Err(err).Str("recipient_id", recipient.ID).Msg("Failed to notify snap")
	}

	return outcome
}

func (s *SnapService) failed(outcome models.DeliveryOutcome, err error) models.DeliveryOutcome {
	snapDeliveries.WithLabelValues("failed").Inc()
	log.Error().Err(err).Str("recipient_id", outcome.RecipientID).Msg("Snap delivery failed")
	outcome.Error = err.Error()
	return outcome
}

// limiterFor returns the sender's limiter, or nil when limiting is off.
// Limiters idle long enough to have refilled are dropped.
func (s *SnapService) limiterFor(senderID string) *rate.Limiter {
	if s.cfg.RatePerMinute <= 0 {
		return nil
	}
	now := s.now()
	every := time.Minute / time.Duration(s.cfg.RatePerMinute)
	burst := max(s.cfg.Burst, 1)

	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	if now.Sub(s.lastSweep) >= time.Minute {
		expiry := max(time.Duration(burst)*every, time.Minute)
		for id, l := range s.limiters {
			if now.Sub(l.lastSeen) > expiry {
				delete(s.limiters, id)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[senderID]
	if !ok {
		l = &senderLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
		s.limiters[senderID] = l
	}
	l.lastSeen = now
	return l.limiter
}

func fanoutLabel(report *models.FanoutReport, err error) string {
	switch {
	case err != nil:
		return outcomeLabel(err)
	case report.Failed == 0:
		return "ok"
	case report.Delivered == 0:
		return "all_failed"
	}
	return "partial"
}
