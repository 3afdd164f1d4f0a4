package verify

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mkmik/argsort"
	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/antstemplate/internal/nrrd"
	"github.com/askiada/antstemplate/internal/stage"
	"github.com/askiada/antstemplate/pkg/pipeline"
)

const (
	// DefaultPeakThreshold is the height a histogram peak must have above both neighbours.
	DefaultPeakThreshold = 1000
	// DefaultLowestPairs is the number of lowest scoring pairs reported per channel.
	DefaultLowestPairs = 3

	// TemplateSet names the outputs of the labels segmented on the template.
	TemplateSet = "template"

	histogramBinsDice = 256
)

var (
	ErrNoLabels        = errors.New("no segmented labels found")
	ErrSpacingMismatch = errors.New("labels do not share space directions")
	ErrChannelMismatch = errors.New("labels do not share the number of channels")
)

// DiceOptions configures Dice.
type DiceOptions struct {
	// LabelsDir is searched for segmented labels unless Labels is set.
	LabelsDir string
	Labels    []string
	OutputDir string
	// Set suffixes the output names, TemplateSet when empty.
	Set string
	// Threshold defaults to DefaultPeakThreshold.
	Threshold float64
	Workers   int
	// Lowest defaults to DefaultLowestPairs.
	Lowest int
}

// Label is a segmentation digitized into channels.
type Label struct {
	Path      string
	Processed string
	Channels  int
	header    nrrd.Header
	sizes     []int
	data      []int
	counts    []int
}

// PairScore is the Dice score of labels I and J on one channel.
type PairScore struct {
	Channel int
	I, J    int
	Score   float64
}

// ChannelStats summarizes the defined scores of one channel.
type ChannelStats struct {
	Channel int
	Scores  []float64
	Mean    float64
	Median  float64
	Low     float64
	High    float64
	Min     float64
	Max     float64
	SD      float64
	// Lowest are the worst pairs, lowest first.
	Lowest []PairScore
}

// DiceResult holds the outcome of Dice.
type DiceResult struct {
	Labels   []*Label
	Channels int
	Scores   []PairScore
	Stats    []ChannelStats
}

// FindPeaks returns the local maxima of hist rising at least threshold above both
// neighbours. A flat maximum is reported at its middle sample, rounded down, and its
// neighbours are the samples next to that middle. The first and last samples are never peaks.
func FindPeaks(hist []float64, threshold float64) []int {
	var peaks []int
	last := len(hist) - 1
	for i := 1; i < last; i++ {
		if hist[i-1] >= hist[i] {
			continue
		}
		ahead := i + 1
		for ahead < last && hist[ahead] == hist[i] {
			ahead++
		}
		if hist[ahead] >= hist[i] {
			continue
		}
		mid := (i + ahead - 1) / 2
		if hist[mid]-hist[mid-1] >= threshold && hist[mid]-hist[mid+1] >= threshold {
			peaks = append(peaks, mid)
		}
		i = ahead
	}

	return peaks
}

// labelHistogram counts the values in equal bins spanning their range.
func labelHistogram(values []float64, n int) []float64 {
	_, counts := histogram(values, n)

	return counts
}

// Channels digitizes values into channels separated by the peaks of their histogram.
func Channels(values []float64, threshold float64) (int, []int) {
	peaks := FindPeaks(labelHistogram(values, histogramBinsDice), threshold)
	n := len(peaks) + 2
	edges := Linspace(0, 255, n)

	out := make([]int, len(values))
	for i, v := range values {
		out[i] = Digitize(v, edges)
	}

	return n, out
}

// DiceScore returns 2|A∩B| / (|A|+|B|), NaN when a set is empty.
func DiceScore(intersection, sizeA, sizeB int) float64 {
	if sizeA == 0 || sizeB == 0 {
		return math.NaN()
	}

	return 2 * float64(intersection) / float64(sizeA+sizeB)
}

// FindLabels lists the segmented NRRD labels of dir.
func FindLabels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(stage.ErrMissingDir, "%s: %v", dir, err)
	}
	var labels []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(name, ".nrrd") && strings.Contains(name, "segmented") {
			labels = append(labels, filepath.Join(dir, name))
		}
	}
	if len(labels) == 0 {
		return nil, errors.Wrap(ErrNoLabels, dir)
	}
	sort.Strings(labels)

	return labels, nil
}

// Dice digitizes the segmented labels and scores their pairwise overlap per channel.
func Dice(ctx context.Context, env stage.Env, opts DiceOptions) (*DiceResult, error) {
	logger := env.Logger.With().Str("component", "dice").Logger()
	if opts.Threshold == 0 {
		opts.Threshold = DefaultPeakThreshold
	}
	if opts.Lowest == 0 {
		opts.Lowest = DefaultLowestPairs
	}
	if opts.Set == "" {
		opts.Set = TemplateSet
	}

	paths := opts.Labels
	if len(paths) == 0 {
		var err error
		if paths, err = FindLabels(opts.LabelsDir); err != nil {
			return nil, err
		}
	}
	if err := checkSpacing(paths); err != nil {
		return nil, err
	}
	workers := min(opts.Workers, len(paths))
	if err := stage.ValidateWorkers(workers, len(paths)); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", opts.OutputDir)
	}

	labels, err := processLabels(ctx, env, paths, opts, workers)
	if err != nil {
		return nil, err
	}
	channels := labels[0].Channels
	for _, label := range labels[1:] {
		if label.Channels != channels {
			return nil, errors.Wrapf(ErrChannelMismatch, "%s has %d, %s has %d", label.Path, label.Channels, labels[0].Path, channels)
		}
	}
	logger.Info().Int("labels", len(labels)).Int("channels", channels).Msg("consensus number of channels")

	scores, err := pairwiseScores(ctx, env, labels, channels, workers)
	if err != nil {
		return nil, err
	}
	if err := writeScores(ScoresName(opts.OutputDir, opts.Set), scores); err != nil {
		return nil, err
	}

	res := &DiceResult{Labels: labels, Channels: channels, Scores: scores}
	res.Stats = channelDiceStats(scores, channels, opts.Lowest)
	for c := range channels {
		if !hasChannel(res.Stats, c) {
			logger.Warn().Msgf("No overlap volumes for channel %d", c)
		}
	}
	for _, s := range res.Stats {
		for _, pair := range s.Lowest {
			logger.Info().
				Str("channel", channelName(s.Channel)).
				Str("a", filepath.Base(labels[pair.I].Path)).
				Str("b", filepath.Base(labels[pair.J].Path)).
				Float64("dice", pair.Score).
				Msg("low overlap")
		}
	}
	if err := writeDiceStats(StatsName(opts.OutputDir, opts.Set), res.Stats); err != nil {
		return nil, err
	}

	if err := writeConsensus(env, labels, channels, opts.OutputDir, opts.Set); err != nil {
		return nil, err
	}

	return res, nil
}

func hasChannel(stats []ChannelStats, c int) bool {
	for _, s := range stats {
		if s.Channel == c {
			return true
		}
	}

	return false
}

func channelName(c int) string {
	if c == 0 {
		return "0 (Background)"
	}

	return strconv.Itoa(c)
}

func checkSpacing(paths []string) error {
	var first nrrd.Header
	for i, path := range paths {
		header, err := nrrd.ReadHeaderFile(path)
		if err != nil {
			return err
		}
		if i == 0 {
			first = header

			continue
		}
		if !nrrd.SameField(first, header, "space directions") {
			return errors.Wrapf(ErrSpacingMismatch, "%s and %s", paths[0], path)
		}
	}

	return nil
}

// ProcessedName returns the path of the digitized label in dir.
func ProcessedName(label, dir string) string {
	return filepath.Join(dir, strings.TrimSuffix(filepath.Base(label), ".nrrd")+"_processed.nrrd")
}

func processLabels(ctx context.Context, env stage.Env, paths []string, opts DiceOptions, workers int) ([]*Label, error) {
	logger := env.Logger.With().Str("component", "dice").Logger()

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "labels", paths)
	if err != nil {
		return nil, err
	}
	processed, err := pipeline.AddStepOneToOne(pipe, "digitize", root, func(_ context.Context, path string) (*Label, error) {
		vol, err := nrrd.ReadFile(path)
		if err != nil {
			return nil, err
		}
		label := &Label{
			Path:      path,
			Processed: ProcessedName(path, opts.OutputDir),
			header:    vol.Header,
			sizes:     vol.Sizes,
		}
		label.Channels, label.data = Channels(vol.Data, opts.Threshold)
		label.counts = make([]int, label.Channels)
		digitized := make([]float64, len(label.data))
		for i, c := range label.data {
			digitized[i] = float64(c)
			if c >= 0 && c < label.Channels {
				label.counts[c]++
			}
		}
		if err := nrrd.WriteFile(label.Processed, vol.Header, digitized); err != nil {
			return nil, err
		}

		return label, nil
	}, pipeline.StepConcurrency[*Label](workers))
	if err != nil {
		return nil, err
	}

	var labels []*Label
	err = pipeline.AddSink(pipe, "collect", processed, func(_ context.Context, label *Label) error {
		logger.Info().Str("file", label.Processed).Int("channels", label.Channels).Msg("saved label")
		labels = append(labels, label)

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Path < labels[j].Path })

	for _, label := range labels[1:] {
		if len(label.data) != len(labels[0].data) {
			return nil, errors.Wrapf(ErrDimensionMismatch, "%s is %v, %s is %v", label.Path, label.sizes, labels[0].Path, labels[0].sizes)
		}
	}

	return labels, nil
}

type pair struct {
	i, j int
}

func pairwiseScores(ctx context.Context, env stage.Env, labels []*Label, channels, workers int) ([]PairScore, error) {
	var pairs []pair
	for i := range labels {
		for j := i + 1; j < len(labels); j++ {
			pairs = append(pairs, pair{i: i, j: j})
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	pipe, err := env.NewPipeline(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}
	root, err := pipeline.AddRootStepFromSlice(pipe, "pairs", pairs)
	if err != nil {
		return nil, err
	}
	scored, err := pipeline.AddStepOneToMany(pipe, "overlap", root, func(_ context.Context, p pair) ([]PairScore, error) {
		a, b := labels[p.i], labels[p.j]
		intersections := make([]int, channels)
		for v, c := range a.data {
			if c == b.data[v] && c >= 0 && c < channels {
				intersections[c]++
			}
		}
		scores := make([]PairScore, channels)
		for c := range channels {
			scores[c] = PairScore{Channel: c, I: p.i, J: p.j, Score: DiceScore(intersections[c], a.counts[c], b.counts[c])}
		}

		return scores, nil
	}, pipeline.StepConcurrency[PairScore](min(workers, len(pairs))))
	if err != nil {
		return nil, err
	}

	var scores []PairScore
	err = pipeline.AddSink(pipe, "collect", scored, func(_ context.Context, s PairScore) error {
		scores = append(scores, s)

		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := pipe.Run(); err != nil {
		return nil, err
	}
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.I != b.I {
			return a.I < b.I
		}

		return a.J < b.J
	})

	return scores, nil
}

func channelDiceStats(scores []PairScore, channels, lowest int) []ChannelStats {
	var res []ChannelStats
	for c := range channels {
		var defined []PairScore
		for _, s := range scores {
			if s.Channel == c && !math.IsNaN(s.Score) {
				defined = append(defined, s)
			}
		}
		if len(defined) == 0 {
			continue
		}

		values := make([]float64, len(defined))
		for i, s := range defined {
			values[i] = s.Score
		}
		order := argsort.SortSlice(values, func(i, j int) bool { return values[i] < values[j] })
		sorted := make([]float64, len(values))
		for i, idx := range order {
			sorted[i] = values[idx]
		}

		s := ChannelStats{
			Channel: c,
			Scores:  values,
			Mean:    stat.Mean(values, nil),
			Median:  Percentile(sorted, 50),
			Low:     Percentile(sorted, 2.5),
			High:    Percentile(sorted, 97.5),
			Min:     floats.Min(values),
			Max:     floats.Max(values),
		}
		_, s.SD = stat.PopMeanStdDev(values, nil)
		for _, idx := range order[:min(lowest, len(order))] {
			s.Lowest = append(s.Lowest, defined[idx])
		}
		res = append(res, s)
	}

	return res
}

func writeScores(path string, scores []PairScore) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"channel", "i", "j", "dice"}); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}
	for _, s := range scores {
		record := []string{strconv.Itoa(s.Channel), strconv.Itoa(s.I), strconv.Itoa(s.J), formatValue(s.Score)}
		if err := w.Write(record); err != nil {
			f.Close()

			return errors.Wrapf(err, "unable to write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}

func writeDiceStats(path string, stats []ChannelStats) error {
	var b strings.Builder
	for _, s := range stats {
		fmt.Fprintf(&b, "Channel %s\n==========\n", channelName(s.Channel))
		fmt.Fprintf(&b, "Average Dice score: %.2f\n", s.Mean)
		fmt.Fprintf(&b, "Median Dice score: %.2f\n", s.Median)
		fmt.Fprintf(&b, "95%% CI Dice score: (%.2f, %.2f)\n", s.Low, s.High)
		fmt.Fprintf(&b, "Min Dice score: %.2f\n", s.Min)
		fmt.Fprintf(&b, "Max Dice score: %.2f\n", s.Max)
		fmt.Fprintf(&b, "Std Dice score: %.2f\n\n", s.SD)
	}

	return errors.Wrapf(os.WriteFile(path, []byte(b.String()), 0o644), "unable to write %s", path)
}

// ScoresName returns the pairwise scores CSV of set in dir.
func ScoresName(dir, set string) string {
	return filepath.Join(dir, "dice_scores_"+set+".csv")
}

// StatsName returns the per channel report of set in dir.
func StatsName(dir, set string) string {
	if set == TemplateSet {
		return filepath.Join(dir, "dice_scores_channel_template.txt")
	}

	return filepath.Join(dir, "dice_scores_"+set+".txt")
}

// ConsensusName returns the consensus volume of channel c of set in dir.
func ConsensusName(dir, set string, c int) string {
	return filepath.Join(dir, consensusPrefix+"_"+strconv.Itoa(c)+"_"+set+".nrrd")
}

// CombinedConsensusName returns the consensus of every channel of set in dir.
func CombinedConsensusName(dir, set string) string {
	return filepath.Join(dir, "consensus_segmentation_"+set+".nrrd")
}

func writeConsensus(env stage.Env, labels []*Label, channels int, dir, set string) error {
	logger := env.Logger.With().Str("component", "dice").Logger()
	printer := message.NewPrinter(language.English)

	n := len(labels[0].data)
	combined := make([]float64, n)
	for c := range channels {
		consensus := make([]float64, n)
		voxels := 0
		for v := range n {
			agree := true
			for _, label := range labels {
				if label.data[v] != c {
					agree = false

					break
				}
			}
			if agree {
				consensus[v] = 1
				voxels++
				if c > 0 {
					combined[v] += float64(c + 1)
				}
			}
		}
		if err := nrrd.WriteFile(ConsensusName(dir, set, c), labels[0].header, consensus); err != nil {
			return err
		}
		logger.Info().Str("channel", channelName(c)).Str("voxels", printer.Sprintf("%d", voxels)).Msg("consensus segmentation computed")
	}

	path := CombinedConsensusName(dir, set)
	if err := nrrd.WriteFile(path, labels[0].header, combined); err != nil {
		return err
	}
	logger.Info().Str("file", path).Msg("consensus segmentation saved")

	return nil
}
