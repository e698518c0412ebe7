package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/animus-labs/runlog/internal/export"
	platformstore "github.com/animus-labs/runlog/internal/platform/objectstore"
	"github.com/animus-labs/runlog/internal/repo"
	storageobjectstore "github.com/animus-labs/runlog/internal/storage/objectstore"
)

func (a *app) exportCommand() *cobra.Command {
	var (
		idFile       string
		ensureBucket bool
	)
	cmd := &cobra.Command{
		Use:   "export [ID]",
		Short: "Copy a run document to object storage as runs/<id>.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveRunID(args, idFile)
			if err != nil {
				return err
			}
			storeCfg, err := platformstore.ConfigFromEnv()
			if err != nil {
				return usageError{err: err}
			}
			client, err := platformstore.NewMinIOClient(storeCfg)
			if err != nil {
				return fmt.Errorf("object store client: %w", err)
			}
			if ensureBucket {
				if err := platformstore.EnsureBucket(cmd.Context(), client, storeCfg); err != nil {
					return err
				}
			}
			objects, err := storageobjectstore.NewMinioStoreWithClient(client)
			if err != nil {
				return err
			}
			exporter := export.Exporter{Store: objects, Bucket: storeCfg.BucketExports}

			return a.withStore(cmd.Context(), func(store repo.DocumentStore) error {
				doc, err := fetchDocument(cmd.Context(), store, a.collection, id)
				if err != nil {
					return err
				}
				info, err := exporter.Export(cmd.Context(), id, doc)
				if err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				a.logger.Info("run exported", "run_id", id, "bucket", storeCfg.BucketExports, "key", info.Key, "size", info.Size, "etag", info.ETag)
				_, err = fmt.Fprintf(a.out, "s3://%s/%s\n", storeCfg.BucketExports, info.Key)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&idFile, "id-file", "", "file written by a recorder, containing {\"run_id\": ...}")
	cmd.Flags().BoolVar(&ensureBucket, "ensure-bucket", false, "create the exports bucket if missing")
	return cmd
}
