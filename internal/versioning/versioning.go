// Package versioning numbers protocol saves and keeps their history.
//
// Every content-changing save appends a full copy of the protocol data to the
// history. Saves whose content hash matches the latest entry keep the current
// version. Rollback restores an older entry by appending it again, so history
// only grows.
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// appendAttempts bounds retries when a concurrent save took the next number.
const appendAttempts = 3

// Archive stores an out-of-database copy of a version entry and returns its
// key. Keys are unique per entry id.
type Archive interface {
	ArchiveVersion(ctx context.Context, v domain.ProtocolVersion) (string, error)
	DeleteArchived(ctx context.Context, key string) error
}

type Versioner struct {
	versions repository.VersionRepository
	archive  Archive
	log      *logger.Logger
	now      func() time.Time
}

// New returns a Versioner. archive may be nil.
func New(versions repository.VersionRepository, archive Archive, log *logger.Logger) *Versioner {
	if log == nil {
		log = logger.Nop()
	}
	return &Versioner{
		versions: versions,
		archive:  archive,
		log:      log.With("component", "versioner"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ContentHash identifies the content of a save. Timestamps and ids are not part of it.
func ContentHash(data domain.ProtocolData) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Record registers the current state of p. It returns the resulting version
// entry and whether a new entry was appended.
func (v *Versioner) Record(ctx context.Context, p *domain.Protocol, actor primitive.ObjectID, note string) (domain.ProtocolVersion, bool, error) {
	data := domain.ProtocolData{
		Name:         p.Name,
		Type:         p.Type,
		DurationDays: p.DurationDays,
		Intensity:    p.Intensity,
		Config:       p.Config,
	}
	hash, err := ContentHash(data)
	if err != nil {
		return domain.ProtocolVersion{}, false, fmt.Errorf("hash protocol content: %w", err)
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		latest, err := v.latest(ctx, p.ID)
		if err != nil {
			return domain.ProtocolVersion{}, false, err
		}
		if latest != nil && latest.ConfigHash == hash {
			return *latest, false, nil
		}
		next := 1
		if latest != nil {
			next = latest.Version + 1
		}
		entry := v.entry(p.ID, next, data, hash, actor, note)
		err = v.append(ctx, &entry)
		if errors.Is(err, repository.ErrConflict) {
			v.log.Warn("Version number taken, retrying", "protocolId", p.ID.Hex(), "version", next)
			continue
		}
		if err != nil {
			return domain.ProtocolVersion{}, false, err
		}
		return entry, true, nil
	}
	return domain.ProtocolVersion{}, false, fmt.Errorf("record version of %s: %w", p.ID.Hex(), repository.ErrConflict)
}

// History returns every version of a protocol in ascending order.
func (v *Versioner) History(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error) {
	return v.versions.List(ctx, protocolID)
}

// Get returns one version entry.
func (v *Versioner) Get(ctx context.Context, protocolID primitive.ObjectID, version int) (*domain.ProtocolVersion, error) {
	entry, err := v.versions.Get(ctx, protocolID, version)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.NotFoundError{Kind: "version", ID: fmt.Sprintf("%s@%s", protocolID.Hex(), domain.VersionLabel(version))}
	}
	return entry, err
}

// Rollback appends the content of version `to` as a new version and returns it.
func (v *Versioner) Rollback(ctx context.Context, protocolID primitive.ObjectID, to int, actor primitive.ObjectID) (domain.ProtocolVersion, error) {
	target, err := v.Get(ctx, protocolID, to)
	if err != nil {
		return domain.ProtocolVersion{}, err
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		latest, err := v.latest(ctx, protocolID)
		if err != nil {
			return domain.ProtocolVersion{}, err
		}
		next := latest.Version + 1
		entry := v.entry(protocolID, next, target.Data(), target.ConfigHash, actor, "restored from "+domain.VersionLabel(to))
		restored := to
		entry.RestoredFrom = &restored
		err = v.append(ctx, &entry)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.ProtocolVersion{}, err
		}
		v.log.Info("Protocol rolled back", "protocolId", protocolID.Hex(), "from", to, "version", next)
		return entry, nil
	}
	return domain.ProtocolVersion{}, fmt.Errorf("rollback of %s: %w", protocolID.Hex(), repository.ErrConflict)
}

// Purge drops the history of a protocol together with its archived snapshots.
// Snapshot deletion failures are logged only.
func (v *Versioner) Purge(ctx context.Context, protocolID primitive.ObjectID) error {
	if v.archive != nil {
		history, err := v.versions.List(ctx, protocolID)
		if err != nil {
			return err
		}
		for _, entry := range history {
			v.discardSnapshot(ctx, entry)
		}
	}
	return v.versions.DeleteByProtocolID(ctx, protocolID)
}

func (v *Versioner) latest(ctx context.Context, protocolID primitive.ObjectID) (*domain.ProtocolVersion, error) {
	latest, err := v.versions.Latest(ctx, protocolID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return latest, err
}

func (v *Versioner) entry(protocolID primitive.ObjectID, version int, data domain.ProtocolData, hash string, actor primitive.ObjectID, note string) domain.ProtocolVersion {
	return domain.ProtocolVersion{
		ID:           primitive.NewObjectID(),
		ProtocolID:   protocolID,
		Version:      version,
		Name:         data.Name,
		Type:         data.Type,
		DurationDays: data.DurationDays,
		Intensity:    data.Intensity,
		Config:       data.Config.Clone(),
		ConfigHash:   hash,
		CreatedBy:    actor,
		ChangeNote:   note,
		CreatedAt:    v.now(),
	}
}

// append archives the entry, then stores it. A failed archive is logged and
// does not block the save. When the entry is not stored its snapshot is
// removed again; the key is per entry id, so a lost race never touches the
// winner's snapshot.
func (v *Versioner) append(ctx context.Context, entry *domain.ProtocolVersion) error {
	if v.archive != nil {
		key, err := v.archive.ArchiveVersion(ctx, *entry)
		if err != nil {
			v.log.Warn("Failed to archive protocol version", "protocolId", entry.ProtocolID.Hex(), "version", entry.Version, "error", err)
		} else {
			entry.ArchiveKey = key
		}
	}
	if err := v.versions.Append(ctx, entry); err != nil {
		v.discardSnapshot(ctx, *entry)
		entry.ArchiveKey = ""
		return err
	}
	return nil
}

func (v *Versioner) discardSnapshot(ctx context.Context, entry domain.ProtocolVersion) {
	if v.archive == nil || entry.ArchiveKey == "" {
		return
	}
	if err := v.archive.DeleteArchived(ctx, entry.ArchiveKey); err != nil {
		v.log.Warn("Failed to delete archived protocol version", "protocolId", entry.ProtocolID.Hex(), "version", entry.Version, "key", entry.ArchiveKey, "error", err)
	}
}
