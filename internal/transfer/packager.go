package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openarchive/retention-service/internal/storage"
	"github.com/openarchive/retention-service/internal/taskqueue"
)

// ErrNoPayload means the document has no files to transfer
var ErrNoPayload = errors.New("document has no payload files")

// skipNames are OS artefacts never copied into a bag
var skipNames = []string{"__MACOSX", ".DS_Store", "Thumbs.db", "desktop.ini"}

type Config struct {
	SourceOrganization string
	SourcePrefix       string
	OutputPrefix       string
}

func DefaultConfig() Config {
	return Config{
		SourceOrganization: "OpenArchive",
		SourcePrefix:       "documents",
		OutputPrefix:       "transfers",
	}
}

// Request identifies the document to package
type Request struct {
	DocumentID string
	Title      string
}

// Result describes a written transfer package
type Result struct {
	Key         string `json:"key"`
	SHA256      string `json:"sha256"`
	PayloadOxum string `json:"payload_oxum"`
	FileCount   int    `json:"file_count"`
	Size        int64  `json:"size"`
}

// Packager reads a document's files from storage and writes its zipped bag
// back to storage.
type Packager struct {
	store  storage.Storage
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

func NewPackager(store storage.Storage, cfg Config, logger *zerolog.Logger) *Packager {
	def := DefaultConfig()
	if cfg.SourcePrefix == "" {
		cfg.SourcePrefix = def.SourcePrefix
	}
	if cfg.OutputPrefix == "" {
		cfg.OutputPrefix = def.OutputPrefix
	}
	if cfg.SourceOrganization == "" {
		cfg.SourceOrganization = def.SourceOrganization
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Packager{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Package builds and stores the bag for req. A document without payload
// files fails permanently.
func (p *Packager) Package(ctx context.Context, req Request) (*Result, error) {
	if req.DocumentID == "" {
		return nil, taskqueue.Permanent(errors.New("transfer request has no document id"))
	}

	prefix := storage.DocumentPrefix(p.cfg.SourcePrefix, req.DocumentID)
	keys, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list payload for %s: %w", req.DocumentID, err)
	}

	files := make([]PayloadFile, 0, len(keys))
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if skipped(rel) {
			continue
		}
		content, err := p.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read payload %s: %w", key, err)
		}
		files = append(files, PayloadFile{Path: rel, Content: content})
	}
	if len(files) == 0 {
		return nil, taskqueue.Permanent(fmt.Errorf("%w: %s", ErrNoPayload, req.DocumentID))
	}

	bag, err := Build(files, Info{
		SourceOrganization: p.cfg.SourceOrganization,
		ExternalIdentifier: req.DocumentID,
		ExternalDesc:       req.Title,
		BaggingDate:        p.now(),
	})
	if err != nil {
		return nil, taskqueue.Permanent(fmt.Errorf("build bag for %s: %w", req.DocumentID, err))
	}

	archive, err := bag.Zip(req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("zip bag for %s: %w", req.DocumentID, err)
	}

	key := storage.TransferKey(p.cfg.OutputPrefix, req.DocumentID)
	sum := storage.ComputeChecksum(archive)
	err = p.store.Put(ctx, key, archive, &storage.Metadata{
		ContentType:  "application/zip",
		OriginalName: req.DocumentID + ".zip",
		DocumentID:   req.DocumentID,
		Kind:         storage.KindTransferBag,
		SHA256:       sum,
		CreatedAt:    p.now(),
		Custom:       map[string]string{"payload_oxum": bag.PayloadOxum},
	})
	if err != nil {
		return nil, fmt.Errorf("store bag for %s: %w", req.DocumentID, err)
	}

	p.logger.Info().
		Str("component", "transfer").
		Str("document_id", req.DocumentID).
		Str("key", key).
		Int("files", bag.FileCount).
		Str("payload_size", SizeString(bag.PayloadSize)).
		Msg("Transfer package written")

	return &Result{
		Key:         key,
		SHA256:      sum,
		PayloadOxum: bag.PayloadOxum,
		FileCount:   bag.FileCount,
		Size:        int64(len(archive)),
	}, nil
}

// Verify re-reads a stored package and validates it
func (p *Packager) Verify(ctx context.Context, documentID string) (ValidationResult, error) {
	data, err := p.store.Get(ctx, storage.TransferKey(p.cfg.OutputPrefix, documentID))
	if err != nil {
		return ValidationResult{}, err
	}
	files, err := ReadZip(data)
	if err != nil {
		return ValidationResult{}, err
	}
	return Validate(files), nil
}

func skipped(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		for _, s := range skipNames {
			if part == s {
				return true
			}
		}
	}
	return rel == ""
}
