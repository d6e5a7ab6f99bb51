package vm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/javanstorm/perftune/internal/machine"
)

// Reasons reported by ImageUpToDate for a stale image.
const (
	ReasonMissing              = "does not exist"
	ReasonWrongKey             = "has wrong public key"
	ReasonNoSetupScript        = "not created with setup script"
	ReasonSetupScript          = "created with setup script"
	ReasonDifferentSetupScript = "created with a different setup script"
)

// ImageDescriptor locates a base image and the provenance records stored
// next to it.
type ImageDescriptor struct {
	ImagePath       string
	PubKeyPath      string
	SetupScriptPath string
}

// NewImageDescriptor returns the descriptor for imagePath with records at
// <image>.pubkey and <image>.setup_script.
func NewImageDescriptor(imagePath string) ImageDescriptor {
	return ImageDescriptor{
		ImagePath:       imagePath,
		PubKeyPath:      imagePath + ".pubkey",
		SetupScriptPath: imagePath + ".setup_script",
	}
}

// readRecord returns a record without its trailing newline.
func readRecord(ctx context.Context, fsys machine.FS, p string) (string, bool, error) {
	content, err := fsys.ReadFile(ctx, p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", p, err)
	}
	return strings.TrimSuffix(content, "\n"), true, nil
}

// ImageUpToDate compares the provenance of the image in desc with the wanted
// public key and setup script. It returns "" when the image may be reused,
// otherwise the reason it must be rebuilt. An empty setupScript means no
// setup script is wanted.
func ImageUpToDate(ctx context.Context, fsys machine.FS, desc ImageDescriptor, pubKey, setupScript string) (string, error) {
	exists, err := fsys.Exists(ctx, desc.ImagePath)
	if err != nil {
		return "", fmt.Errorf("check image: %w", err)
	}
	if !exists {
		return ReasonMissing, nil
	}

	recordedKey, _, err := readRecord(ctx, fsys, desc.PubKeyPath)
	if err != nil {
		return "", err
	}
	if recordedKey != strings.TrimSuffix(pubKey, "\n") {
		return ReasonWrongKey, nil
	}

	recorded, hasRecord, err := readRecord(ctx, fsys, desc.SetupScriptPath)
	if err != nil {
		return "", err
	}
	wanted := strings.TrimSuffix(setupScript, "\n")
	switch {
	case !hasRecord && wanted != "":
		return ReasonNoSetupScript, nil
	case hasRecord && wanted == "":
		return ReasonSetupScript, nil
	case hasRecord && recorded != wanted:
		return ReasonDifferentSetupScript, nil
	}
	return "", nil
}

// RecordProvenance writes the records ImageUpToDate compares against.
// Call it only after the image was built successfully.
func RecordProvenance(ctx context.Context, fsys machine.FS, desc ImageDescriptor, pubKey, setupScript string) error {
	if err := fsys.WriteFile(ctx, desc.PubKeyPath, strings.TrimSuffix(pubKey, "\n")+"\n"); err != nil {
		return fmt.Errorf("record public key: %w", err)
	}
	if setupScript == "" {
		if err := fsys.Remove(ctx, desc.SetupScriptPath); err != nil {
			return fmt.Errorf("remove setup script record: %w", err)
		}
		return nil
	}
	if err := fsys.WriteFile(ctx, desc.SetupScriptPath, strings.TrimSuffix(setupScript, "\n")+"\n"); err != nil {
		return fmt.Errorf("record setup script: %w", err)
	}
	return nil
}

// RemoveImage deletes the image and its records.
func RemoveImage(ctx context.Context, fsys machine.FS, desc ImageDescriptor) error {
	for _, p := range []string{desc.SetupScriptPath, desc.PubKeyPath, desc.ImagePath} {
		if err := fsys.Remove(ctx, p); err != nil {
			return fmt.Errorf("remove %s: %w", path.Base(p), err)
		}
	}
	return nil
}
