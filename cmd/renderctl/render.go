package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/scene-assembler/internal/job"
)

func newRenderCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one request read from a JSON file",
		Long:  "Render one request read from a JSON file, or from stdin when the file is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			_, deps, err := loadDependencies()
			if err != nil {
				return err
			}

			res, err := deps.RenderService.Submit(cmd.Context(), req)
			if err != nil {
				var failure *job.Failure
				if errors.As(err, &failure) {
					fmt.Fprintf(cmd.ErrOrStderr(), "render log for %s written to %s\n", failure.GenerationID, deps.Logs.Dir())
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"generation_id":           res.GenerationID,
				"b2_url":                  res.VideoURL,
				"duration":                res.Duration,
				"file_size":               res.FileSize,
				"processing_time_seconds": res.ProcessingTime.Seconds(),
				"archive_path":            res.ArchivePath,
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the render request JSON (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readRequest(stdin io.Reader, file string) (job.RenderRequest, error) {
	var req job.RenderRequest

	r := stdin
	if file != "-" {
		f, err := os.Open(file) // #nosec G304 - path is supplied by the operator
		if err != nil {
			return req, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, req.Validate()
}
