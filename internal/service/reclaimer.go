package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/Frenky19/RiftTalk/internal/provision"
	"github.com/Frenky19/RiftTalk/internal/repo"
)

// ReclaimerOptions carries the sweep thresholds. False negatives (a
// resource lingering one more sweep) are acceptable; false positives
// (deleting an active match) are not, so every threshold errs on keeping.
type ReclaimerOptions struct {
	Interval     time.Duration // time between sweeps
	HardTimeout  time.Duration // no match legitimately runs longer than this
	ClosingGrace time.Duration // wait after an early-leave close request
	StaleAfter   time.Duration // age before an idle room/channel counts as stale
	MinAge       time.Duration // never touch resources younger than this
}

func DefaultReclaimerOptions() ReclaimerOptions {
	return ReclaimerOptions{
		Interval:     time.Minute,
		HardTimeout:  2 * time.Hour,
		ClosingGrace: 2 * time.Minute,
		StaleAfter:   6 * time.Hour,
		MinAge:       10 * time.Minute,
	}
}

// Reclaimer periodically finds rooms and provisioned channel sets with no
// verifiable active participants and deletes them through the same
// teardown path as an explicit match-end. It never mutates room fields
// directly.
type Reclaimer struct {
	coord *Coordinator
	rooms repo.RoomStore
	prov  provision.Provisioner
	opts  ReclaimerOptions
	sched gocron.Scheduler
	now   func() time.Time
}

func NewReclaimer(coord *Coordinator, rooms repo.RoomStore, prov provision.Provisioner, opts ReclaimerOptions) *Reclaimer {
	return &Reclaimer{coord: coord, rooms: rooms, prov: prov, opts: opts, now: time.Now}
}

// Start schedules the sweep at a fixed interval, independent of request
// traffic.
func (r *Reclaimer) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(r.opts.Interval),
		gocron.NewTask(func() { r.Sweep(ctx) }),
	); err != nil {
		return err
	}
	sched.Start()
	r.sched = sched
	log.Info().Dur("interval", r.opts.Interval).Msg("orphan reclaimer started")
	return nil
}

func (r *Reclaimer) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}

// Sweep runs one pass over stored rooms and externally discoverable
// channel sets.
func (r *Reclaimer) Sweep(ctx context.Context) {
	r.sweepRooms(ctx)
	r.sweepOrphans(ctx)
}

// sweepRooms ages out room records: a hard timeout for runaway matches, a
// short grace window for rooms already marked closing, and a staleness
// threshold for everything else.
func (r *Reclaimer) sweepRooms(ctx context.Context) {
	rooms, err := r.rooms.ListRooms(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("room sweep: list failed")
		return
	}
	now := r.now().UTC()
	for _, room := range rooms {
		if room.MatchID == "" || room.CreatedAt.IsZero() {
			continue
		}
		age := now.Sub(room.CreatedAt)

		if age > r.opts.HardTimeout {
			log.Info().Str("match_id", room.MatchID).Dur("age", age).Msg("room sweep: hard timeout")
			_ = r.coord.EndMatch(ctx, room.MatchID)
			continue
		}
		if !room.ClosingRequestedAt.IsZero() &&
			now.Sub(room.ClosingRequestedAt) >= r.opts.ClosingGrace &&
			r.inactive(ctx, room.MatchID) {
			log.Info().Str("match_id", room.MatchID).Msg("room sweep: marked closing and inactive")
			_ = r.coord.EndMatch(ctx, room.MatchID)
			continue
		}
		if age >= r.opts.StaleAfter && r.inactive(ctx, room.MatchID) {
			log.Info().Str("match_id", room.MatchID).Dur("age", age).Msg("room sweep: stale and inactive")
			_ = r.coord.EndMatch(ctx, room.MatchID)
		}
	}
}

// inactive reports confirmed absence of participants. Unknown liveness
// counts as active: we never delete what we cannot verify.
func (r *Reclaimer) inactive(ctx context.Context, matchID string) bool {
	active, err := r.prov.HasActiveParticipants(ctx, matchID)
	if err != nil {
		return false
	}
	return !active
}

// sweepOrphans walks the provisioner's channel sets. These can outlive the
// room records entirely (process crash, memory backend restart), so
// discovery goes through the external naming convention rather than the
// store.
func (r *Reclaimer) sweepOrphans(ctx context.Context) {
	resources, err := r.prov.ListMatchResources(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("orphan sweep: listing failed")
		return
	}
	now := r.now().UTC()
	for _, res := range resources {
		if res.CreatedAt.IsZero() {
			continue
		}
		age := now.Sub(res.CreatedAt)
		if age < r.opts.MinAge || age < r.opts.StaleAfter {
			continue
		}
		if res.ConnectedMembers > 0 {
			continue
		}
		if res.RoleMembers > 0 {
			// Old enough to assume the role members are stale; strip and
			// re-verify before touching anything.
			if err := r.prov.StripStaleRoles(ctx, res.MatchID); err != nil {
				log.Warn().Err(err).Str("match_id", res.MatchID).Msg("orphan sweep: role strip failed")
				continue
			}
			if !r.inactive(ctx, res.MatchID) {
				continue
			}
		}
		log.Info().Str("match_id", res.MatchID).Dur("age", age).Msg("orphan sweep: deleting stale match resources")
		_ = r.coord.EndMatch(ctx, res.MatchID)
	}
}
