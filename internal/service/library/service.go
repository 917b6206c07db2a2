// Package library keeps per-pair watch history and the shared show list
// two accounts build by watching together.
package library

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/store"
)

// Common errors for library operations.
var (
	ErrSamePartner     = errors.New("cannot share a library with yourself")
	ErrPartnerNotFound = errors.New("partner not found")
	ErrMissingSource   = errors.New("source url is required")
)

// Store is the persistence the service needs.
type Store interface {
	store.UserStore
	store.WatchStore
	store.LibraryStore
}

// Service records shared watches coming out of rooms and answers library
// queries for the REST API.
type Service struct {
	store Store
	log   *zerolog.Logger
}

var _ core.WatchRecorder = (*Service)(nil)

// New creates a library service.
func New(st Store, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, log: logger}
}

// RecordSharedWatch writes one row per pair of distinct numeric user ids and
// moves each pair's library entry for the source to watching. Ids that are
// not account ids are skipped.
func (s *Service) RecordSharedWatch(ctx context.Context, w core.SharedWatch) error {
	ids := accountIDs(w.UserIDs)
	if len(ids) < 2 {
		return nil
	}

	var errs []error
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if err := s.recordPair(ctx, ids[i], ids[j], w); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) recordPair(ctx context.Context, a, b int64, w core.SharedWatch) error {
	row := &store.SharedWatch{
		UserA:     a,
		UserB:     b,
		RoomCode:  w.RoomCode,
		SourceURL: w.SourceURL,
		Show:      string(w.Show),
		Episode:   string(w.Episode),
		StreamURL: w.StreamURL,
	}
	if err := s.store.RecordSharedWatch(ctx, row); err != nil {
		return fmt.Errorf("record watch %d/%d: %w", a, b, err)
	}

	if w.SourceURL == "" {
		return nil
	}
	status, err := s.store.StartWatching(ctx, a, b, w.SourceURL, string(w.Show))
	if err != nil {
		return fmt.Errorf("start watching %d/%d: %w", a, b, err)
	}
	s.log.Debug().
		Int64("user_a", row.UserA).
		Int64("user_b", row.UserB).
		Str("source_url", w.SourceURL).
		Str("status", string(status)).
		Msg("shared library updated")
	return nil
}

// Add puts a show on the list userID shares with partnerID.
func (s *Service) Add(ctx context.Context, userID, partnerID int64, sourceURL, show string) (*store.LibraryEntry, error) {
	if userID == partnerID {
		return nil, ErrSamePartner
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, ErrMissingSource
	}
	if _, err := s.store.GetUserByID(ctx, partnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPartnerNotFound
		}
		return nil, fmt.Errorf("lookup partner: %w", err)
	}

	entry, err := s.store.AddLibraryEntry(ctx, userID, partnerID, sourceURL, show)
	if err != nil {
		return nil, fmt.Errorf("add library entry: %w", err)
	}
	return entry, nil
}

// List returns every library entry userID takes part in.
func (s *Service) List(ctx context.Context, userID int64) ([]*store.LibraryEntry, error) {
	entries, err := s.store.ListLibrary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	return entries, nil
}

// Watches returns userID's most recent shared watches.
func (s *Service) Watches(ctx context.Context, userID int64, limit int) ([]*store.SharedWatch, error) {
	watches, err := s.store.ListSharedWatches(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return watches, nil
}

// accountIDs parses, dedupes and sorts the numeric ids.
func accountIDs(raw []string) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(r), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
