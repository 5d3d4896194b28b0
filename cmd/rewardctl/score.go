package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-reward/internal/application"
	"github.com/ahrav/go-reward/internal/domain"
)

// maxLineBytes bounds one JSONL input line.
const maxLineBytes = 64 << 20

// scoreInput is one JSONL input line of the score command.
type scoreInput struct {
	Prompt       string `json:"prompt"`
	Answer       string `json:"answer"`
	GTAnswer     string `json:"gt_answer"`
	Datasource   string `json:"datasource"`
	UUID         string `json:"uuid"`
	ImageFile    string `json:"image_file"`
	AnswerLength *int   `json:"answer_token_length"`
}

// scoreOutput is one JSONL output line, in input order.
type scoreOutput struct {
	Index      int            `json:"index"`
	UUID       string         `json:"uuid,omitempty"`
	Datasource string         `json:"datasource"`
	Reward     float64        `json:"reward"`
	Extracted  *domain.Answer `json:"extracted_answer,omitempty"`
	Reference  *domain.Answer `json:"extracted_gt_answer,omitempty"`
}

// group is the batch of one datasource plus the input positions of its rows.
type group struct {
	datasource string
	batch      domain.Batch
	rows       []int
}

func newScoreCommand(c *cli) *cobra.Command {
	var (
		input     string
		log       bool
		iteration int
		extracted bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a JSONL file of responses and print one reward per line",
		Long: `Reads JSONL objects with prompt, answer, gt_answer and optional datasource,
uuid, image_file and answer_token_length fields. Rows are batched per
datasource and rewards are printed as JSONL in input order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := readScoreInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			eng, err := c.build()
			if err != nil {
				return err
			}

			outputs := make([]scoreOutput, len(rows))
			for _, g := range groupByDatasource(rows) {
				res, err := eng.system.Evaluate(cmd.Context(), g.batch, application.EvaluateOptions{
					Log:       log,
					Iteration: iteration,
				})
				if err != nil {
					return fmt.Errorf("datasource %s: %w", g.datasource, err)
				}
				for j, row := range g.rows {
					out := scoreOutput{
						Index:      row,
						UUID:       rows[row].UUID,
						Datasource: g.datasource,
						Reward:     res.Rewards[j],
					}
					if extracted {
						out.Extracted = &res.Extracted[j]
						out.Reference = &res.References[j]
					}
					outputs[row] = out
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := range outputs {
				if err := enc.Encode(&outputs[i]); err != nil {
					return err
				}
			}
			printSummary(c.stderr, outputs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSONL input file, - for stdin")
	cmd.Flags().BoolVar(&log, "log", false, "append scored records to the audit log")
	cmd.Flags().IntVar(&iteration, "iteration", 0, "training iteration written to audit records")
	cmd.Flags().BoolVar(&extracted, "extracted", false, "include extracted answers and references")
	return cmd
}

func readScoreInput(stdin io.Reader, path string) ([]scoreInput, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var rows []scoreInput
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var row scoreInput
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if row.Datasource == "" {
			row.Datasource = domain.DefaultDatasource
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

// groupByDatasource splits rows into one batch per datasource, ordered by
// first appearance.
func groupByDatasource(rows []scoreInput) []*group {
	var groups []*group
	index := make(map[string]*group)
	for i, row := range rows {
		g, ok := index[row.Datasource]
		if !ok {
			g = &group{datasource: row.Datasource}
			index[row.Datasource] = g
			groups = append(groups, g)
		}
		length := domain.DefaultAnswerLength
		if row.AnswerLength != nil {
			length = *row.AnswerLength
		}
		b := &g.batch
		b.Prompts = append(b.Prompts, row.Prompt)
		b.Answers = append(b.Answers, row.Answer)
		b.References = append(b.References, row.GTAnswer)
		b.Datasources = append(b.Datasources, row.Datasource)
		b.IDs = append(b.IDs, row.UUID)
		b.ImageFiles = append(b.ImageFiles, row.ImageFile)
		b.AnswerLengths = append(b.AnswerLengths, length)
		g.rows = append(g.rows, i)
	}
	return groups
}
