package cli

import (
	"fmt"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slices"
)

// Summary describes the distances and durations of a group of records.
type Summary struct {
	Group     string
	Count     int
	Succeeded int
	Distance  Moments
	Duration  Moments
}

// Moments are the summary statistics of one record field.
type Moments struct {
	Mean, StdDev, Median, P90, Min, Max float64
}

func moments(data stats.Float64Data) (Moments, error) {
	var m Moments
	var err error
	if m.Mean, err = data.Mean(); err != nil {
		return m, err
	}
	if m.StdDev, err = data.StandardDeviation(); err != nil {
		return m, err
	}
	if m.Median, err = data.Median(); err != nil {
		return m, err
	}
	if m.P90, err = data.PercentileNearestRank(90); err != nil {
		return m, err
	}
	if m.Min, err = data.Min(); err != nil {
		return m, err
	}
	m.Max, err = data.Max()
	return m, err
}

const histogramWidth = 40

func groupKey(r Record) string {
	if r.Chain == "" {
		return r.Kind
	}
	return r.Kind + "/" + r.Chain
}

// Summarize groups records by kind and chain and computes their statistics.
func Summarize(records []Record) ([]Summary, error) {
	groups := lo.GroupBy(records, groupKey)
	keys := lo.Keys(groups)
	slices.Sort(keys)
	summaries := make([]Summary, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		s := Summary{
			Group:     k,
			Count:     len(group),
			Succeeded: lo.CountBy(group, func(r Record) bool { return r.Success }),
		}
		var err error
		if s.Distance, err = moments(lo.Map(group, func(r Record, _ int) float64 { return r.Distance })); err != nil {
			return nil, errors.Wrapf(err, "%s distance", k)
		}
		if s.Duration, err = moments(lo.Map(group, func(r Record, _ int) float64 { return r.DurationMS })); err != nil {
			return nil, errors.Wrapf(err, "%s duration", k)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// StatsAction is the corresponding Action for 'stats'.
func StatsAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("expected at least one records file")
	}
	records, err := readRecords(c.Args().Slice()...)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printf(c.App.Writer, "no records")
		return nil
	}
	summaries, err := Summarize(records)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Group", "Count", "Success", "Dist mean", "Dist std", "Dist median", "Dist p90", "Dist max", "ms mean", "ms p90"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Group, s.Count, fmt.Sprintf("%.1f%%", 100*float64(s.Succeeded)/float64(s.Count)),
			g(s.Distance.Mean), g(s.Distance.StdDev), g(s.Distance.Median), g(s.Distance.P90), g(s.Distance.Max),
			fmt.Sprintf("%.2f", s.Duration.Mean), fmt.Sprintf("%.2f", s.Duration.P90),
		})
	}
	t.Render()

	bins := c.Int(flagBins)
	if bins <= 0 {
		return nil
	}
	groups := lo.GroupBy(records, groupKey)
	for _, s := range summaries {
		printf(c.App.Writer, "\n%s distance", s.Group)
		if s.Distance.Min == s.Distance.Max {
			printf(c.App.Writer, "all %d records at %s", s.Count, g(s.Distance.Min))
			continue
		}
		hist := histogram.Hist(bins, lo.Map(groups[s.Group], func(r Record, _ int) float64 { return r.Distance }))
		if err := histogram.Fprint(c.App.Writer, hist, histogram.Linear(histogramWidth)); err != nil {
			return err
		}
	}
	return nil
}

func g(f float64) string {
	return fmt.Sprintf("%.3g", f)
}
