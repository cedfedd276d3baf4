// Package transfer builds BagIt 1.0 packages for documents leaving the
// archive's custody.
package transfer

import (
	"archive/zip"
	"bufio"
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	bagitDeclaration = "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"
	softwareAgent    = "OpenArchive Retention Service"
	payloadDir       = "data/"
)

// Algorithms used for payload manifests. The first is also used for the
// tag manifest.
var Algorithms = []string{"sha256", "md5"}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "md5":
		return md5.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
}

func checksum(algorithm string, data []byte) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PayloadFile is one file placed under data/
type PayloadFile struct {
	Path    string
	Content []byte
}

// Info holds the bag-info.txt fields
type Info struct {
	SourceOrganization string
	ExternalIdentifier string
	ExternalDesc       string
	BaggingDate        time.Time
}

// Bag is an in-memory BagIt package, keyed by bag-relative path
type Bag struct {
	Files       map[string][]byte
	PayloadOxum string
	FileCount   int
	PayloadSize int64
}

// NormalizePath converts a payload path to NFC with forward slashes and no
// leading or dot segments.
func NormalizePath(p string) (string, error) {
	p = norm.NFC.String(strings.ReplaceAll(p, "\\", "/"))
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("empty payload path %q", p)
	}
	if strings.ContainsAny(clean, "\r\n") {
		return "", fmt.Errorf("payload path %q contains a line break", p)
	}
	return clean, nil
}

// Build assembles a bag. Payload paths are normalized and sorted so the
// same input always yields the same manifests.
func Build(files []PayloadFile, info Info) (*Bag, error) {
	payload := make(map[string][]byte, len(files))
	for _, f := range files {
		p, err := NormalizePath(f.Path)
		if err != nil {
			return nil, err
		}
		if _, dup := payload[p]; dup {
			return nil, fmt.Errorf("duplicate payload path %q after normalization", p)
		}
		payload[p] = f.Content
	}

	paths := make([]string, 0, len(payload))
	var size int64
	for p, content := range payload {
		paths = append(paths, p)
		size += int64(len(content))
	}
	sort.Strings(paths)

	bag := &Bag{
		Files:       make(map[string][]byte, len(payload)+6),
		PayloadOxum: fmt.Sprintf("%d.%d", size, len(paths)),
		FileCount:   len(paths),
		PayloadSize: size,
	}
	for _, p := range paths {
		bag.Files[payloadDir+p] = payload[p]
	}

	bag.Files["bagit.txt"] = []byte(bagitDeclaration)
	bag.Files["bag-info.txt"] = bagInfo(info, bag.PayloadOxum)

	for _, alg := range Algorithms {
		var b strings.Builder
		for _, p := range paths {
			sum, err := checksum(alg, payload[p])
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&b, "%s  %s%s\n", sum, payloadDir, p)
		}
		bag.Files["manifest-"+alg+".txt"] = []byte(b.String())
	}

	tagAlg := Algorithms[0]
	tagFiles := make([]string, 0, 4)
	for name := range bag.Files {
		if !strings.HasPrefix(name, payloadDir) {
			tagFiles = append(tagFiles, name)
		}
	}
	sort.Strings(tagFiles)
	var tb strings.Builder
	for _, name := range tagFiles {
		sum, err := checksum(tagAlg, bag.Files[name])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&tb, "%s  %s\n", sum, name)
	}
	bag.Files["tagmanifest-"+tagAlg+".txt"] = []byte(tb.String())

	return bag, nil
}

func bagInfo(info Info, oxum string) []byte {
	date := info.BaggingDate
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var b strings.Builder
	writeField := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	writeField("Source-Organization", info.SourceOrganization)
	writeField("External-Identifier", info.ExternalIdentifier)
	writeField("External-Description", info.ExternalDesc)
	writeField("Bagging-Date", date.Format("2006-01-02"))
	writeField("Bag-Software-Agent", softwareAgent)
	writeField("Payload-Oxum", oxum)
	writeField("Bag-Count", "1 of 1")
	return []byte(b.String())
}

// Zip writes the bag under a top-level directory named root
func (b *Bag) Zip(root string) ([]byte, error) {
	names := make([]string, 0, len(b.Files))
	for name := range b.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   root + "/" + name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s to zip: %w", name, err)
		}
		if _, err := w.Write(b.Files[name]); err != nil {
			return nil, fmt.Errorf("write %s to zip: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadZip loads a zipped bag, stripping a single top-level directory
func ReadZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		name := f.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		files[name] = content
	}
	return files, nil
}

// ValidationResult reports problems found in a bag
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	PayloadFiles int      `json:"payload_files"`
	PayloadSize  int64    `json:"payload_size"`
}

// Validate checks declarations, every manifest and tag manifest entry, and
// that no payload file is missing from the manifests.
func Validate(files map[string][]byte) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	decl, ok := files["bagit.txt"]
	if !ok {
		res.Errors = append(res.Errors, "missing bagit.txt")
	} else {
		if !bytes.Contains(decl, []byte("BagIt-Version:")) {
			res.Errors = append(res.Errors, "bagit.txt missing BagIt-Version")
		}
		if !bytes.Contains(decl, []byte("Tag-File-Character-Encoding:")) {
			res.Errors = append(res.Errors, "bagit.txt missing Tag-File-Character-Encoding")
		}
	}
	if _, ok := files["bag-info.txt"]; !ok {
		res.Warnings = append(res.Warnings, "missing bag-info.txt")
	}

	manifested := make(map[string]bool)
	manifests := 0
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var alg string
		var isTag bool
		switch {
		case strings.HasPrefix(name, "manifest-") && strings.HasSuffix(name, ".txt"):
			alg = strings.TrimSuffix(strings.TrimPrefix(name, "manifest-"), ".txt")
			manifests++
		case strings.HasPrefix(name, "tagmanifest-") && strings.HasSuffix(name, ".txt"):
			alg = strings.TrimSuffix(strings.TrimPrefix(name, "tagmanifest-"), ".txt")
			isTag = true
		default:
			continue
		}

		scanner := bufio.NewScanner(bytes.NewReader(files[name]))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			sum, p, found := strings.Cut(line, " ")
			p = strings.TrimSpace(p)
			if !found || p == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: malformed line %q", name, line))
				continue
			}
			content, ok := files[p]
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s references missing file %s", name, p))
				continue
			}
			got, err := checksum(alg, content)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
				break
			}
			if !strings.EqualFold(got, sum) {
				res.Errors = append(res.Errors, fmt.Sprintf("checksum mismatch for %s (%s)", p, alg))
			}
			if !isTag {
				manifested[p] = true
			}
		}
	}
	if manifests == 0 {
		res.Errors = append(res.Errors, "no payload manifest found")
	}

	for _, name := range names {
		if !strings.HasPrefix(name, payloadDir) {
			continue
		}
		res.PayloadFiles++
		res.PayloadSize += int64(len(files[name]))
		if manifests > 0 && !manifested[name] {
			res.Errors = append(res.Errors, fmt.Sprintf("payload file %s not in any manifest", name))
		}
	}

	if info, ok := files["bag-info.txt"]; ok {
		want := fmt.Sprintf("%d.%d", res.PayloadSize, res.PayloadFiles)
		if oxum := infoField(info, "Payload-Oxum"); oxum != "" && oxum != want {
			res.Errors = append(res.Errors, fmt.Sprintf("Payload-Oxum %s does not match payload %s", oxum, want))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func infoField(info []byte, key string) string {
	scanner := bufio.NewScanner(bytes.NewReader(info))
	for scanner.Scan() {
		k, v, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// SizeString renders a byte count for humans
func SizeString(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
