package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.trai.ch/cellar/internal/core/domain"
)

func printPlan(w io.Writer, plan *domain.ResolvedPlan) {
	_, _ = fmt.Fprintf(w, "platform %s, %d steps\n", plan.Platform, plan.Len())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for step := range plan.Walk() {
		action := "build"
		switch {
		case step.Available:
			action = "cached"
		case step.Bottle != nil:
			action = "pour"
		}
		deps := make([]string, 0, len(step.Dependencies))
		for _, d := range step.Dependencies {
			deps = append(deps, d.Name.String())
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			step.Name, step.Version, step.Channel, action, shortDigest(step.Fingerprint), strings.Join(deps, ","))
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, report *domain.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, res := range report.Results {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", res.Status, res.Step, res.Version, res.Duration().Round(time.Millisecond))
		if res.Err != nil {
			line += "\t" + string(res.Kind) + ": " + res.Err.Error()
		}
		_, _ = fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "%d built, %d cached, %d failed\n",
		report.Count(domain.StatusSucceeded), report.Count(domain.StatusCached), report.Count(domain.StatusFailed))
	if retry := report.RetryTargets(); len(retry) > 0 {
		_, _ = fmt.Fprintf(w, "retry with: cellar install %s\n", strings.Join(retry, " "))
	}
}

func printArtifacts(w io.Writer, artifacts []domain.BuildArtifact) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, a := range artifacts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.Package, a.Version, a.Origin, shortDigest(a.Fingerprint), a.Path)
	}
	_ = tw.Flush()
}

func shortDigest(fp domain.Fingerprint) string {
	if fp.Validate() != nil {
		return "-"
	}
	enc := fp.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}
