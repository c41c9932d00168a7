// Package anticheat implements the claims-based acceptor and the
// retrospective statistical analyzer: real-time plausibility checks
// reject an implausible claim before it is committed to the
// transaction log, and a pure analysis pass over an already-committed
// window of transactions produces CheatFlag reports for slower,
// pattern-based detection (speed-hacking, teleportation, x-ray,
// worn-tool spoofing). Both paths share the same transaction surface
// as every other component: a claim that passes validation is
// appended to the log exactly like any other transaction.
package anticheat

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/geo"
	"github.com/ironvale/sagaengine/obs"
	"github.com/ironvale/sagaengine/txlog"
)

// Plausibility constants. Bit-exact per the external interface
// contract (§6): a host interoperating with another implementation of
// this engine must use the same thresholds.
const (
	MaxMovementSpeed = 20.0 // meters/second
	MaxMiningRate    = 4.0  // blocks/second
	MaxBuildingRate  = 2.0  // blocks/second
	MaxReachMeters   = 6.0  // max distance from avatar to a claimed block

	// ExpectedRareOrePercentage is the population baseline fraction of
	// mined blocks that are rare ore under honest play.
	ExpectedRareOrePercentage = 0.02
)

// ExpectedToolWearPerBlock is the boot-time configuration of expected
// wear-per-block for a (tool_ref, block_type) pair. A claim reporting
// wear far below this baseline suggests a client reporting inflated
// durability (or none at all).
var ExpectedToolWearPerBlock = map[string]float64{
	"WoodPickaxe:Stone":  0.02,
	"StonePickaxe:Stone": 0.01,
	"IronPickaxe:Stone":  0.005,
	"IronPickaxe:Ore":    0.01,
	"DiamondPickaxe:Ore": 0.004,
}

func wearKey(toolRef, blockType string) string {
	return toolRef + ":" + blockType
}

// Claim kinds the real-time validator accepts.

// LocationClaim reports the avatar's position at a point in time.
type LocationClaim struct {
	AvatarID string
	Position geo.Point
	At       time.Time
}

// ToolWearClaim reports wear accumulated on a tool over a number of
// mined blocks.
type ToolWearClaim struct {
	AvatarID    string
	ToolRef     string
	BlockType   string
	BlocksMined int
	ActualWear  float64
	At          time.Time
}

// MiningSessionClaim reports a contiguous mining session.
type MiningSessionClaim struct {
	AvatarID         string
	Start, End       geo.Point
	DurationSeconds  float64
	BlockCount       int
	RareOreCount     int
	MaxBlockDistance float64 // farthest claimed block from the avatar during the session
	At               time.Time
}

// BuildingSessionClaim reports a contiguous building session.
type BuildingSessionClaim struct {
	AvatarID         string
	Start, End       geo.Point
	DurationSeconds  float64
	BlockCount       int
	MaxBlockDistance float64
	At               time.Time
}

// InventorySnapshotClaim establishes a baseline for cross-session
// reconciliation. The validator never rejects a snapshot; it only
// records it.
type InventorySnapshotClaim struct {
	AvatarID string
	Items    map[string]int
	At       time.Time
}

// Validator is the real-time, stateful half of the anti-cheat system.
// It tracks each avatar's last accepted location so it can compute
// movement speed across claims. Not safe for concurrent use on the
// same avatar, matching the engine's single-logical-task-per-instance
// concurrency model.
type Validator struct {
	lastLocation map[string]LocationClaim

	// Metrics is optional; when set via SetMetrics every accepted and
	// rejected location, mining-session and building-session claim is
	// counted (tool-wear claims and inventory snapshots are not). A nil
	// Metrics is always safe.
	Metrics *obs.Metrics
}

// NewValidator creates an empty real-time validator.
func NewValidator() *Validator {
	return &Validator{lastLocation: make(map[string]LocationClaim)}
}

// SetMetrics attaches the ambient metrics surface to v. Passing nil
// disables metrics recording.
func (v *Validator) SetMetrics(m *obs.Metrics) {
	v.Metrics = m
}

func (v *Validator) recordOutcome(accepted bool) {
	if v.Metrics == nil {
		return
	}
	ctx := context.Background()
	if accepted {
		v.Metrics.ClaimsAccepted.Add(ctx, 1)
	} else {
		v.Metrics.ClaimsRejected.Add(ctx, 1)
	}
}

// ValidateLocation checks claim's implied speed against the last
// accepted location for the same avatar. A claim with no prior
// location for that avatar is always accepted (nothing to compare
// against). On acceptance it appends a Committed LocationClaimed
// transaction and becomes the new reference point; on rejection the
// reference point is left unchanged so a single bad sample cannot
// poison every subsequent check.
func (v *Validator) ValidateLocation(log *txlog.Log, claim LocationClaim) (*txlog.Transaction, error) {
	prev, ok := v.lastLocation[claim.AvatarID]
	if ok {
		dt := claim.At.Sub(prev.At).Seconds()
		if dt > 0 {
			speed := geo.Distance(prev.Position, claim.Position) / dt
			if speed > MaxMovementSpeed {
				v.recordOutcome(false)
				return nil, &core.AntiCheatRejected{
					ClaimType:  "LocationClaim",
					Reason:     fmt.Sprintf("speed %.2f m/s exceeds max %.2f m/s", speed, MaxMovementSpeed),
					Confidence: 1.0,
				}
			}
		}
	}

	tx := txlog.New(txlog.TypeLocationClaimed, claim.AvatarID, claim.At, map[string]string{
		"PositionX": f6(claim.Position.X),
		"PositionY": "0",
		"PositionZ": f6(claim.Position.Y),
	})
	tx.Status = txlog.StatusCommitted
	if err := log.Append(tx); err != nil {
		return nil, err
	}
	v.lastLocation[claim.AvatarID] = claim
	v.recordOutcome(true)
	return tx, nil
}

// ValidateToolWear never rejects — consistently low wear is a
// retrospective Durability signal, not a real-time rejection — but it
// reports warn=true when actual wear per block is below a tenth of the
// expected baseline for the claimed (tool, block) pair, so a caller
// can log the anomaly immediately.
func (v *Validator) ValidateToolWear(log *txlog.Log, claim ToolWearClaim) (tx *txlog.Transaction, warn bool, err error) {
	expected, known := ExpectedToolWearPerBlock[wearKey(claim.ToolRef, claim.BlockType)]
	if known && claim.BlocksMined > 0 {
		perBlock := claim.ActualWear / float64(claim.BlocksMined)
		if perBlock < 0.1*expected {
			warn = true
		}
	}

	tx = txlog.New(txlog.TypeToolWearClaimed, claim.AvatarID, claim.At, map[string]string{
		"ToolRef":     claim.ToolRef,
		"BlockType":   claim.BlockType,
		"BlocksMined": strconv.Itoa(claim.BlocksMined),
		"ActualWear":  f6(claim.ActualWear),
	})
	tx.Status = txlog.StatusCommitted
	if err = log.Append(tx); err != nil {
		return nil, false, err
	}
	return tx, warn, nil
}

// ValidateMiningSession rejects a session whose implied rate exceeds
// MaxMiningRate or whose claimed block reach exceeds MaxReachMeters.
func (v *Validator) ValidateMiningSession(log *txlog.Log, claim MiningSessionClaim) (*txlog.Transaction, error) {
	if claim.MaxBlockDistance > MaxReachMeters {
		v.recordOutcome(false)
		return nil, &core.AntiCheatRejected{
			ClaimType:  "MiningSessionClaim",
			Reason:     fmt.Sprintf("block reach %.2fm exceeds max %.2fm", claim.MaxBlockDistance, MaxReachMeters),
			Confidence: 1.0,
		}
	}
	rate := sessionRate(claim.BlockCount, claim.DurationSeconds)
	if rate > MaxMiningRate {
		v.recordOutcome(false)
		return nil, &core.AntiCheatRejected{
			ClaimType:  "MiningSessionClaim",
			Reason:     fmt.Sprintf("mining rate %.2f blocks/s exceeds max %.2f blocks/s", rate, MaxMiningRate),
			Confidence: 1.0,
		}
	}

	rareOrePct := 0.0
	if claim.BlockCount > 0 {
		rareOrePct = float64(claim.RareOreCount) / float64(claim.BlockCount)
	}
	tx := txlog.New(txlog.TypeMiningSessionClaimed, claim.AvatarID, claim.At, map[string]string{
		"BlockCount":        strconv.Itoa(claim.BlockCount),
		"MiningRate":        f6(rate),
		"RareOrePercentage": f6(rareOrePct),
	})
	tx.Status = txlog.StatusCommitted
	if err := log.Append(tx); err != nil {
		return nil, err
	}
	v.recordOutcome(true)
	return tx, nil
}

// ValidateBuildingSession mirrors ValidateMiningSession for placed
// blocks, against MaxBuildingRate.
func (v *Validator) ValidateBuildingSession(log *txlog.Log, claim BuildingSessionClaim) (*txlog.Transaction, error) {
	if claim.MaxBlockDistance > MaxReachMeters {
		v.recordOutcome(false)
		return nil, &core.AntiCheatRejected{
			ClaimType:  "BuildingSessionClaim",
			Reason:     fmt.Sprintf("block reach %.2fm exceeds max %.2fm", claim.MaxBlockDistance, MaxReachMeters),
			Confidence: 1.0,
		}
	}
	rate := sessionRate(claim.BlockCount, claim.DurationSeconds)
	if rate > MaxBuildingRate {
		v.recordOutcome(false)
		return nil, &core.AntiCheatRejected{
			ClaimType:  "BuildingSessionClaim",
			Reason:     fmt.Sprintf("building rate %.2f blocks/s exceeds max %.2f blocks/s", rate, MaxBuildingRate),
			Confidence: 1.0,
		}
	}

	tx := txlog.New(txlog.TypeBuildingSessionClaimed, claim.AvatarID, claim.At, map[string]string{
		"BlockCount":   strconv.Itoa(claim.BlockCount),
		"BuildingRate": f6(rate),
	})
	tx.Status = txlog.StatusCommitted
	if err := log.Append(tx); err != nil {
		return nil, err
	}
	v.recordOutcome(true)
	return tx, nil
}

// RecordInventorySnapshot establishes a reconciliation baseline. Never
// rejected.
func (v *Validator) RecordInventorySnapshot(log *txlog.Log, claim InventorySnapshotClaim) (*txlog.Transaction, error) {
	data := make(map[string]string, len(claim.Items))
	for ref, qty := range claim.Items {
		data["Item:"+ref] = strconv.Itoa(qty)
	}
	tx := txlog.New(txlog.TypeInventorySnapshot, claim.AvatarID, claim.At, data)
	tx.Status = txlog.StatusCommitted
	if err := log.Append(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func sessionRate(blockCount int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(blockCount) / durationSeconds
}

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
