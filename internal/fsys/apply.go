package fsys

import (
	"regexp"

	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// FileBlock is one <file path="...">...</file> block extracted from a
// winning candidate's output.
type FileBlock struct {
	Path    string
	Content string
}

var fileBlockPattern = regexp.MustCompile(`(?s)<file path="([^"]+)">\n?(.*?)</file>`)

// ExtractFileBlocks parses every <file path="…">…</file> block out of
// output, in document order. A step whose winning output contains no
// blocks yields an empty, non-error result — not every step writes files.
func ExtractFileBlocks(output string) []FileBlock {
	matches := fileBlockPattern.FindAllStringSubmatch(output, -1)
	blocks := make([]FileBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, FileBlock{Path: m[1], Content: m[2]})
	}
	return blocks
}

// ApplyOverwrite writes every file block in winningOutput to fs,
// implementing the "overwrite_file" applier named in DomainConfig.
// "patch_file" is left unimplemented (see DESIGN.md); calling it here
// is a config error.
func ApplyOverwrite(fs ports.FileSystem, applier, winningOutput string) ([]string, error) {
	if applier != schema.ApplierOverwriteFile {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "applier %q is not implemented; only %q is", applier, schema.ApplierOverwriteFile)
	}

	blocks := ExtractFileBlocks(winningOutput)
	written := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if err := fs.WriteFile(b.Path, []byte(b.Content)); err != nil {
			return written, err
		}
		written = append(written, b.Path)
	}
	return written, nil
}
