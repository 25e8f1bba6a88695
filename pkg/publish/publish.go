package publish

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Artifacts are the outputs of one run.
type Artifacts struct {
	RunID string
	// Report is the JSON encoded run report.
	Report []byte
	// ArchivePath points to the log archive; empty if no archive was written.
	ArchivePath string
}

// Publisher uploads artifacts and notifies a webhook. Both parts are optional.
type Publisher struct {
	Provider Provider
	Webhook  *Webhook
}

// Enabled reports whether there is anything to publish to.
func (p *Publisher) Enabled() bool {
	return p != nil && (p.Provider != nil || p.Webhook != nil)
}

// Publish uploads the report and archive below <run id>/ and sends the report to the webhook.
// Every step is attempted even if an earlier one failed. Failures are logged as warnings; the
// last one is returned.
func (p *Publisher) Publish(ctx context.Context, artifacts Artifacts) error {
	logger := zerolog.Ctx(ctx)
	var lastErr error

	if p.Provider != nil {
		remote := path.Join(artifacts.RunID, "report.json")
		err := p.Provider.Upload(ctx, bytes.NewReader(artifacts.Report), remote)
		if err != nil {
			logger.Warn().Err(err).Str("provider", p.Provider.Name()).Msg("failed to upload the report")
			lastErr = err
		} else {
			logger.Info().Str("provider", p.Provider.Name()).Str("path", remote).Msg("uploaded report")
		}

		if artifacts.ArchivePath != "" {
			if err = p.uploadFile(ctx, artifacts.ArchivePath, path.Join(artifacts.RunID, filepath.Base(artifacts.ArchivePath))); err != nil {
				logger.Warn().Err(err).Str("provider", p.Provider.Name()).Msg("failed to upload the log archive")
				lastErr = err
			}
		}
	}

	if p.Webhook != nil {
		if err := p.Webhook.Send(ctx, artifacts.Report); err != nil {
			logger.Warn().Err(err).Msg("failed to notify the webhook")
			lastErr = err
		}
	}

	return lastErr
}

func (p *Publisher) uploadFile(ctx context.Context, localPath, remote string) error {
	handle, err := os.Open(localPath)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", localPath)
	}
	defer handle.Close()

	if err = p.Provider.Upload(ctx, handle, remote); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("provider", p.Provider.Name()).Str("path", remote).Msg("uploaded log archive")
	return nil
}
