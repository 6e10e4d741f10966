package build

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/mortenlj/yakupci/internal/source"
)

// Location of the nextest JUnit report, relative to the source directory.
const junitReport = "target/nextest/ci/junit.xml"

// Outcome of a test run.
type TestReport struct {
	Raw      []byte   // JUnit XML as written by nextest.
	Tests    int      // Number of test cases.
	Failures int      // Test cases that failed.
	Errors   int      // Test cases that errored.
	Skipped  int      // Test cases that were skipped.
	Failed   []string // Names of failed or errored test cases, "suite::name".
}

// Lints and tests the project on the host target.
//
// Clippy runs first with warnings denied; a lint failure wraps ErrLint and
// no tests run. Tests run with nextest's "ci" profile. When tests fail the
// report is still returned, together with an error wrapping ErrTest.
func (b *Builder) Test(ctx context.Context, src *source.Snapshot) (*TestReport, error) {
	p, err := b.Project(ctx, src, "")
	if err != nil {
		return nil, err
	}
	defer p.Close(context.WithoutCancel(ctx))

	triple := p.Target.Triple

	slog.Info("linting", "target", triple)
	if err := p.Run(ctx, "cargo", "clippy", "--no-deps", "--release", "--target", triple, "--", "--deny", "warnings"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLint, err)
	}

	slog.Info("testing", "target", triple)
	testErr := p.Run(ctx, "cargo", "nextest", "run", "--profile", "ci", "--release", "--target", triple)

	var cmdErr *CommandError
	if testErr != nil && !errors.As(testErr, &cmdErr) {
		return nil, fmt.Errorf("%w: %w", ErrTest, testErr)
	}

	raw, err := p.ReadFile(ctx, junitReport)
	if err != nil {
		if testErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTest, testErr)
		}
		return nil, fmt.Errorf("%w: no report: %w", ErrTest, err)
	}

	report, err := ParseReport(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTest, err)
	}

	slog.Info("tests finished",
		"tests", report.Tests,
		"failures", report.Failures,
		"errors", report.Errors,
		"skipped", report.Skipped,
	)

	if testErr != nil {
		return report, fmt.Errorf("%w: %w", ErrTest, testErr)
	}
	return report, nil
}

// Parses a JUnit XML report into a summary.
//
// Counts are taken from the test cases rather than from the suite
// attributes, which nextest does not always fill in.
func ParseReport(raw []byte) (*TestReport, error) {
	var suites junit.Testsuites
	if err := xml.Unmarshal(raw, &suites); err != nil {
		return nil, fmt.Errorf("invalid junit report: %w", err)
	}

	report := &TestReport{Raw: raw}
	for _, suite := range suites.Suites {
		for _, tc := range suite.Testcases {
			report.Tests++
			switch {
			case tc.Failure != nil:
				report.Failures++
				report.Failed = append(report.Failed, suite.Name+"::"+tc.Name)
			case tc.Error != nil:
				report.Errors++
				report.Failed = append(report.Failed, suite.Name+"::"+tc.Name)
			case tc.Skipped != nil:
				report.Skipped++
			}
		}
	}
	return report, nil
}
