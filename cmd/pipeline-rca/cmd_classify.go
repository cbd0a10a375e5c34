package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/pipeline-rca/internal/format"
	"github.com/miradorstack/pipeline-rca/internal/models"
)

var classifyFlags struct {
	pipeline string
	reason   string
	logFile  string
	stages   []string
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a failure from its reason and an optional console log",
	Example: `  pipeline-rca classify --pipeline api --reason "java.lang.OutOfMemoryError"
  curl -s $JENKINS/job/api/lastBuild/consoleText | pipeline-rca classify --pipeline api --log-file -`,
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyFlags.pipeline, "pipeline", "", "pipeline or job id (required)")
	f.StringVar(&classifyFlags.reason, "reason", "", "failure reason; defaults to the first error line of the log")
	f.StringVar(&classifyFlags.logFile, "log-file", "", "console log file, - for stdin")
	f.StringSliceVar(&classifyFlags.stages, "stage", nil, "affected stage (repeatable)")
	_ = classifyCmd.MarkFlagRequired("pipeline")
}

func runClassify(cmd *cobra.Command, _ []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	var lines []string
	if classifyFlags.logFile != "" {
		if lines, err = readLines(cmd.InOrStdin(), classifyFlags.logFile); err != nil {
			return err
		}
	}

	reason := classifyFlags.reason
	if reason == "" {
		for _, line := range lines {
			if line != "" {
				reason = line
				break
			}
		}
	}

	resp, err := a.svc.Classify(cmd.Context(), models.ClassifyRequest{
		PipelineID:     classifyFlags.pipeline,
		FailureReason:  reason,
		Logs:           lines,
		AffectedStages: classifyFlags.stages,
	})
	if err != nil {
		return err
	}
	if err := emit(cmd.OutOrStdout(), resp, func(m format.Mode) string { return format.Analysis(resp, m) }); err != nil {
		return err
	}
	if resp.AutoFixScript != nil && outputFormat != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSuggested auto-fix (not executed):\n%s\n", *resp.AutoFixScript)
	}
	return nil
}

func readLines(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return lines, nil
}
