package anticheat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/ironvale/sagaengine/obs"
	"github.com/ironvale/sagaengine/txlog"
)

// FlagType enumerates the retrospective analyzer's detectors.
type FlagType string

const (
	FlagSpeedHack     FlagType = "SpeedHack"
	FlagTeleportation FlagType = "Teleportation"
	FlagXRay          FlagType = "XRay"
	FlagDurability    FlagType = "Durability"
)

// SuspicionThreshold is the confidence at or above which a player is
// considered suspicious.
const SuspicionThreshold = 0.7

// CheatFlag is one piece of retrospective evidence against a player.
type CheatFlag struct {
	Type            FlagType
	Confidence      float64
	Evidence        string
	FirstOccurrence time.Time
	OccurrenceCount int
}

// Report aggregates every flag raised against one player over an
// analysis window.
type Report struct {
	AvatarID string
	Flags    []CheatFlag
}

// IsSuspicious reports whether any flag in the report meets
// SuspicionThreshold.
func (r *Report) IsSuspicious() bool {
	for _, f := range r.Flags {
		if f.Confidence >= SuspicionThreshold {
			return true
		}
	}
	return false
}

// Analyze is a pure function over an already-committed transaction
// slice: it derives no side effects and appends nothing. It windows
// transactions to [t0, t1] by canonical timestamp, then runs each
// detector per avatar. The returned map is keyed by avatar id; an
// avatar with no flags raised is omitted.
func Analyze(txs []*txlog.Transaction, t0, t1 time.Time) map[string]*Report {
	windowed := make([]*txlog.Transaction, 0, len(txs))
	for _, tx := range txs {
		ts := tx.GetCanonicalTimestamp()
		if !ts.Before(t0) && !ts.After(t1) {
			windowed = append(windowed, tx)
		}
	}

	byAvatar := groupByAvatar(windowed)
	reports := make(map[string]*Report)
	for avatarID, avTxs := range byAvatar {
		var flags []CheatFlag
		if f, ok := detectSpeedHack(avTxs); ok {
			flags = append(flags, f)
		}
		if f, ok := detectTeleportation(avTxs); ok {
			flags = append(flags, f)
		}
		if f, ok := detectXRay(avTxs); ok {
			flags = append(flags, f)
		}
		flags = append(flags, detectDurability(avTxs)...)

		if len(flags) > 0 {
			reports[avatarID] = &Report{AvatarID: avatarID, Flags: flags}
		}
	}
	return reports
}

// AnalyzeWithMetrics runs the pure Analyze pass and then records the
// total number of flags raised against m, if m is non-nil. Kept
// separate from Analyze so the analyzer itself stays a pure function
// with no observability side effects.
func AnalyzeWithMetrics(ctx context.Context, m *obs.Metrics, txs []*txlog.Transaction, t0, t1 time.Time) map[string]*Report {
	reports := Analyze(txs, t0, t1)
	if m != nil {
		var total int64
		for _, r := range reports {
			total += int64(len(r.Flags))
		}
		if total > 0 {
			m.CheatFlagsRaised.Add(ctx, total)
		}
	}
	return reports
}

func groupByAvatar(txs []*txlog.Transaction) map[string][]*txlog.Transaction {
	out := make(map[string][]*txlog.Transaction)
	for _, tx := range txs {
		out[tx.AvatarID] = append(out[tx.AvatarID], tx)
	}
	return out
}

// detectSpeedHack flags a player whose mining/building sessions are
// rate-implausible more than half the time: more than 0.5 of sessions
// run above 90% of the relevant theoretical max rate.
func detectSpeedHack(txs []*txlog.Transaction) (CheatFlag, bool) {
	var total, fast int
	var first time.Time
	for _, tx := range txs {
		var rate, max float64
		switch tx.Type {
		case txlog.TypeMiningSessionClaimed:
			rate = parseFloatOr(tx.Data["MiningRate"], 0)
			max = MaxMiningRate
		case txlog.TypeBuildingSessionClaimed:
			rate = parseFloatOr(tx.Data["BuildingRate"], 0)
			max = MaxBuildingRate
		default:
			continue
		}
		total++
		if rate > 0.9*max {
			fast++
			if first.IsZero() || tx.GetCanonicalTimestamp().Before(first) {
				first = tx.GetCanonicalTimestamp()
			}
		}
	}
	if total == 0 {
		return CheatFlag{}, false
	}
	fraction := float64(fast) / float64(total)
	if fraction <= 0.5 {
		return CheatFlag{}, false
	}
	return CheatFlag{
		Type:            FlagSpeedHack,
		Confidence:      0.85,
		Evidence:        sprintfEvidence("%d/%d sessions above 90%% of theoretical max rate", fast, total),
		FirstOccurrence: first,
		OccurrenceCount: fast,
	}, true
}

// detectTeleportation flags avatars whose consecutive LocationClaimed
// pairs imply a speed more than double MaxMovementSpeed. Confidence
// starts at 0.85 and grows 0.03 per extra occurrence, capped at 0.98.
func detectTeleportation(txs []*txlog.Transaction) (CheatFlag, bool) {
	locs := filterSorted(txs, txlog.TypeLocationClaimed)
	if len(locs) < 2 {
		return CheatFlag{}, false
	}

	var occurrences int
	var first time.Time
	for i := 1; i < len(locs); i++ {
		prev, cur := locs[i-1], locs[i]
		dt := cur.GetCanonicalTimestamp().Sub(prev.GetCanonicalTimestamp()).Seconds()
		if dt <= 0 {
			continue
		}
		dx := parseFloatOr(cur.Data["PositionX"], 0) - parseFloatOr(prev.Data["PositionX"], 0)
		dz := parseFloatOr(cur.Data["PositionZ"], 0) - parseFloatOr(prev.Data["PositionZ"], 0)
		dist := math.Sqrt(dx*dx + dz*dz)
		speed := dist / dt
		if speed > 2*MaxMovementSpeed {
			occurrences++
			if first.IsZero() {
				first = prev.GetCanonicalTimestamp()
			}
		}
	}
	if occurrences == 0 {
		return CheatFlag{}, false
	}
	confidence := 0.85 + 0.03*float64(occurrences-1)
	if confidence > 0.98 {
		confidence = 0.98
	}
	return CheatFlag{
		Type:            FlagTeleportation,
		Confidence:      confidence,
		Evidence:        sprintfEvidence("%d location jump(s) exceeding 2x max movement speed", occurrences),
		FirstOccurrence: first,
		OccurrenceCount: occurrences,
	}, true
}

// detectXRay flags aggregate rare-ore discovery far above the
// expected baseline over a statistically meaningful sample (>=50
// blocks).
func detectXRay(txs []*txlog.Transaction) (CheatFlag, bool) {
	var totalBlocks, rareBlocks int
	var first time.Time
	for _, tx := range txs {
		if tx.Type != txlog.TypeMiningSessionClaimed {
			continue
		}
		count := int(parseFloatOr(tx.Data["BlockCount"], 0))
		pct := parseFloatOr(tx.Data["RareOrePercentage"], 0)
		totalBlocks += count
		rareBlocks += int(pct * float64(count))
		if first.IsZero() {
			first = tx.GetCanonicalTimestamp()
		}
	}
	if totalBlocks < 50 {
		return CheatFlag{}, false
	}
	rate := float64(rareBlocks) / float64(totalBlocks)
	if rate <= 3*ExpectedRareOrePercentage {
		return CheatFlag{}, false
	}
	ratio := rate / ExpectedRareOrePercentage
	confidence := 0.5 + (ratio-3)*0.1
	if confidence > 0.95 {
		confidence = 0.95
	}
	return CheatFlag{
		Type:            FlagXRay,
		Confidence:      confidence,
		Evidence:        sprintfEvidence("rare ore rate %.4f over %d blocks is %.1fx expected", rate, totalBlocks, ratio),
		FirstOccurrence: first,
		OccurrenceCount: totalBlocks,
	}, true
}

// detectDurability flags every (tool, block type) pair whose average
// claimed wear-per-block is under a tenth of the configured baseline.
func detectDurability(txs []*txlog.Transaction) []CheatFlag {
	type agg struct {
		wear  float64
		count int
		first time.Time
	}
	byTool := make(map[string]*agg)
	for _, tx := range txs {
		if tx.Type != txlog.TypeToolWearClaimed {
			continue
		}
		key := wearKey(tx.Data["ToolRef"], tx.Data["BlockType"])
		blocks := int(parseFloatOr(tx.Data["BlocksMined"], 0))
		if blocks <= 0 {
			continue
		}
		a, ok := byTool[key]
		if !ok {
			a = &agg{first: tx.GetCanonicalTimestamp()}
			byTool[key] = a
		}
		a.wear += parseFloatOr(tx.Data["ActualWear"], 0)
		a.count += blocks
		if tx.GetCanonicalTimestamp().Before(a.first) {
			a.first = tx.GetCanonicalTimestamp()
		}
	}

	var flags []CheatFlag
	keys := make([]string, 0, len(byTool))
	for k := range byTool {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expected, known := ExpectedToolWearPerBlock[key]
		if !known {
			continue
		}
		a := byTool[key]
		perBlock := a.wear / float64(a.count)
		if perBlock >= 0.1*expected {
			continue
		}
		flags = append(flags, CheatFlag{
			Type:            FlagDurability,
			Confidence:      0.95,
			Evidence:        sprintfEvidence("%s wear %.5f/block is under 10%% of expected %.5f", key, perBlock, expected),
			FirstOccurrence: a.first,
			OccurrenceCount: a.count,
		})
	}
	return flags
}

// CommunityStats summarizes a population's mining-rate and
// rare-ore-rate distributions, used to z-score an individual player
// for outlier discovery.
type CommunityStats struct {
	MiningRateMean   float64
	MiningRateStdDev float64
	RareOreMean      float64
	RareOreStdDev    float64
}

// ComputeCommunityStats aggregates MiningSessionClaimed transactions
// across every avatar in txs into population mean/stddev for both
// mining rate and rare-ore rate, via montanaflynn/stats.
func ComputeCommunityStats(txs []*txlog.Transaction) (CommunityStats, error) {
	var rates, oreRates stats.Float64Data
	for _, tx := range txs {
		if tx.Type != txlog.TypeMiningSessionClaimed {
			continue
		}
		rates = append(rates, parseFloatOr(tx.Data["MiningRate"], 0))
		oreRates = append(oreRates, parseFloatOr(tx.Data["RareOrePercentage"], 0))
	}
	if len(rates) == 0 {
		return CommunityStats{}, nil
	}

	rateMean, err := rates.Mean()
	if err != nil {
		return CommunityStats{}, err
	}
	rateStdDev, err := rates.StandardDeviation()
	if err != nil {
		return CommunityStats{}, err
	}
	oreMean, err := oreRates.Mean()
	if err != nil {
		return CommunityStats{}, err
	}
	oreStdDev, err := oreRates.StandardDeviation()
	if err != nil {
		return CommunityStats{}, err
	}
	return CommunityStats{
		MiningRateMean:   rateMean,
		MiningRateStdDev: rateStdDev,
		RareOreMean:      oreMean,
		RareOreStdDev:    oreStdDev,
	}, nil
}

// PlayerZScores computes an avatar's mining-rate and rare-ore-rate
// z-scores against community, averaging over that avatar's own
// MiningSessionClaimed transactions in txs. A zero standard deviation
// yields a zero z-score rather than a division by zero.
func PlayerZScores(txs []*txlog.Transaction, avatarID string, community CommunityStats) (miningZ, oreZ float64) {
	var rates, oreRates stats.Float64Data
	for _, tx := range txs {
		if tx.Type != txlog.TypeMiningSessionClaimed || tx.AvatarID != avatarID {
			continue
		}
		rates = append(rates, parseFloatOr(tx.Data["MiningRate"], 0))
		oreRates = append(oreRates, parseFloatOr(tx.Data["RareOrePercentage"], 0))
	}
	if len(rates) == 0 {
		return 0, 0
	}
	rateMean, _ := rates.Mean()
	oreMean, _ := oreRates.Mean()

	if community.MiningRateStdDev > 0 {
		miningZ = (rateMean - community.MiningRateMean) / community.MiningRateStdDev
	}
	if community.RareOreStdDev > 0 {
		oreZ = (oreMean - community.RareOreMean) / community.RareOreStdDev
	}
	return miningZ, oreZ
}

func filterSorted(txs []*txlog.Transaction, t txlog.Type) []*txlog.Transaction {
	var out []*txlog.Transaction
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetCanonicalTimestamp().Before(out[j].GetCanonicalTimestamp())
	})
	return out
}

func parseFloatOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func sprintfEvidence(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
