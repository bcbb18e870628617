package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	dErrors "ista/pkg/domain-errors"
)

// LatestVersion resolves to the highest version loaded for a dataset.
const LatestVersion = "latest"

// Catalog holds validated dataset specifications keyed by name and
// version. It is read-only after construction.
type Catalog struct {
	specs  map[string]map[string]*DatasetSpec
	latest map[string]string
}

// LoadDir reads every *.yaml file in dir as a dataset spec, then
// validates each spec individually and the relationship graph across
// the whole catalog. Any invalid file fails the load.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSpecNotFound, fmt.Sprintf("read spec directory %s", dir))
	}

	var specs []*DatasetSpec
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		// Policy rulesets live beside dataset specs; skip them here.
		if entry.Name() == "policies.yaml" {
			continue
		}
		spec, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return New(specs...)
}

// New builds a catalog from already-parsed specs, running the full
// static validation pass.
func New(specs ...*DatasetSpec) (*Catalog, error) {
	c := &Catalog{
		specs:  make(map[string]map[string]*DatasetSpec),
		latest: make(map[string]string),
	}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		versions, ok := c.specs[spec.Name]
		if !ok {
			versions = make(map[string]*DatasetSpec)
			c.specs[spec.Name] = versions
		}
		if _, dup := versions[spec.Version]; dup {
			return nil, dErrors.Newf(dErrors.CodeSpecInvalid,
				"duplicate spec %s@%s", spec.Name, spec.Version)
		}
		versions[spec.Version] = spec
		if current, ok := c.latest[spec.Name]; !ok || versionLess(current, spec.Version) {
			c.latest[spec.Name] = spec.Version
		}
	}
	if err := c.validateRelationships(); err != nil {
		return nil, err
	}
	return c, nil
}

// versionLess orders version strings naturally: digit runs compare as
// numbers and everything else byte-wise, so v10 sorts above v2.
func versionLess(a, b string) bool {
	for a != "" && b != "" {
		aChunk, aRest := versionChunk(a)
		bChunk, bRest := versionChunk(b)
		if aChunk != bChunk {
			aNum, aErr := strconv.Atoi(aChunk)
			bNum, bErr := strconv.Atoi(bChunk)
			if aErr == nil && bErr == nil {
				return aNum < bNum
			}
			return aChunk < bChunk
		}
		a, b = aRest, bRest
	}
	return a == "" && b != ""
}

// versionChunk splits the leading run of digits or non-digits off s.
func versionChunk(s string) (string, string) {
	isDigit := s[0] >= '0' && s[0] <= '9'
	for i := 1; i < len(s); i++ {
		if (s[i] >= '0' && s[i] <= '9') != isDigit {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func loadFile(path string) (*DatasetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSpecNotFound, fmt.Sprintf("read spec file %s", path))
	}
	var spec DatasetSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSpecInvalid, fmt.Sprintf("parse spec file %s", path))
	}
	return &spec, nil
}

// Load returns the spec for (name, version). Version "latest" or ""
// resolves to the highest version seen. Fails with CodeSpecNotFound
// when absent.
func (c *Catalog) Load(name, version string) (*DatasetSpec, error) {
	versions, ok := c.specs[name]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeSpecNotFound, "dataset %s not in catalog", name)
	}
	if version == "" || version == LatestVersion {
		version = c.latest[name]
	}
	spec, ok := versions[version]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeSpecNotFound, "dataset %s has no version %s", name, version)
	}
	return spec, nil
}

// List returns the latest version of every dataset, sorted by name.
func (c *Catalog) List() []*DatasetSpec {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*DatasetSpec, 0, len(names))
	for _, name := range names {
		out = append(out, c.specs[name][c.latest[name]])
	}
	return out
}

// validateRelationships checks cross-dataset consistency: every
// relationship must point at a declared dataset and at that dataset's
// identifier field.
func (c *Catalog) validateRelationships() error {
	for name, versions := range c.specs {
		for version, spec := range versions {
			for _, rel := range spec.Relationships {
				parentVersions, ok := c.specs[rel.Dataset]
				if !ok {
					return dErrors.Newf(dErrors.CodeSpecInvalid,
						"%s@%s: relationship %s points to undeclared dataset %s",
						name, version, rel.Field, rel.Dataset)
				}
				parent := parentVersions[c.latest[rel.Dataset]]
				if parent.IdentifierField() != rel.References {
					return dErrors.Newf(dErrors.CodeSpecInvalid,
						"%s@%s: relationship %s references %s.%s which is not an identifier field",
						name, version, rel.Field, rel.Dataset, rel.References)
				}
			}
		}
	}
	return nil
}
