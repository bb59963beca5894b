package vault

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/util/frontmatter"
)

const (
	spaceDirName   = ".space"
	contextFile    = "context.yml"
	definitionFile = "def.yml"
)

// FSConfig configures a markdown vault on disk.
type FSConfig struct {
	Root    string
	Include []string
	Exclude []string
}

// FS is an Adapter over a directory of markdown files. Context tables live
// in <folder>/.space/context.yml and definitions in <folder>/.space/def.yml;
// virtual spaces keep theirs under <root>/.space/spaces/<name>/.
type FS struct {
	root    string
	include []string
	exclude []string
	logger  *logrus.Entry

	mu    sync.Mutex
	names map[string]string // lowercased file name -> path
}

type tableFile struct {
	Schemas []models.TableSchema     `yaml:"schemas"`
	Tables  map[string]*models.Table `yaml:"tables"`
}

// NewFS opens the vault at cfg.Root.
func NewFS(cfg FSConfig, logger *logrus.Entry) (*FS, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.StorageFailed("resolve", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.StorageFailed("open", root, err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("vault root '%s' is not a directory", root))
	}
	for _, p := range append(append([]string(nil), cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.ConfigInvalid(fmt.Sprintf("bad glob pattern %q", p))
		}
	}
	include := cfg.Include
	if len(include) == 0 {
		include = []string{"**/*.md"}
	}
	return &FS{root: root, include: include, exclude: cfg.Exclude, logger: logger}, nil
}

// Root returns the absolute vault directory.
func (v *FS) Root() string {
	return v.root
}

// VaultPath converts an absolute file name into a vault path.
func (v *FS) VaultPath(abs string) (string, bool) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

// abs resolves a vault path against the root and rejects escapes.
func (v *FS) abs(p string) (string, error) {
	full := filepath.Join(v.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	if full != v.root && !strings.HasPrefix(full, v.root+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("path '%s' escapes the vault", p))
	}
	return full, nil
}

// Included reports whether a vault path is indexed.
func (v *FS) Included(p string, dir bool) bool {
	rel := strings.TrimPrefix(p, "/")
	if rel == "" {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	for _, pat := range v.exclude {
		if match(pat, rel) || match(pat, rel+"/_") {
			return false
		}
	}
	if dir {
		return true
	}
	for _, pat := range v.include {
		if match(pat, rel) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// Invalidate forgets the link resolution index. Call it after files
// change outside the adapter.
func (v *FS) Invalidate() {
	v.mu.Lock()
	v.names = nil
	v.mu.Unlock()
}

func (v *FS) byName(name string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.names == nil {
		v.names = make(map[string]string)
		files, err := v.AllPaths(models.PathTypeFile)
		if err != nil {
			v.logger.WithError(err).Warn("Failed to build link name index")
		}
		// sorted input: the shallowest, alphabetically first path wins
		sort.SliceStable(files, func(i, j int) bool {
			return strings.Count(files[i], "/") < strings.Count(files[j], "/")
		})
		for _, f := range files {
			key := strings.ToLower(path.Base(f))
			if _, ok := v.names[key]; !ok {
				v.names[key] = f
			}
		}
	}
	return v.names[name]
}

func (v *FS) ReadPathCache(p string) (*PathCache, error) {
	full, err := v.abs(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageFailed("stat", p, err)
	}

	pc := &PathCache{
		Path:     p,
		ReadOnly: info.Mode().Perm()&0o200 == 0,
		ModTime:  info.ModTime(),
	}
	if info.IsDir() {
		pc.Type = models.PathTypeFolder
		return pc, nil
	}
	pc.Type = models.PathTypeFile
	pc.SubType = models.Extension(p)
	if pc.SubType != "md" {
		return pc, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.StorageFailed("read", p, err)
	}
	meta, body, err := frontmatter.Split(string(data))
	if err != nil {
		v.logger.WithError(err).WithField("path", p).Warn("Ignoring invalid frontmatter")
	}
	pc.Metadata = meta
	pc.Tags = ExtractTags(body)
	for _, l := range ExtractLinks(body) {
		pc.Links = append(pc.Links, resolveLink(p, l, v.byName))
	}
	return pc, nil
}

// spaceDir returns the directory holding a space's tables and definition.
func (v *FS) spaceDir(space string) (string, error) {
	if models.IsSpacePath(space) {
		name := url.PathEscape(strings.TrimPrefix(space, models.SpacePrefix))
		return filepath.Join(v.root, spaceDirName, "spaces", name), nil
	}
	dir, err := v.abs(space)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, spaceDirName), nil
}

func (v *FS) readTableFile(space string) (*tableFile, string, error) {
	dir, err := v.spaceDir(space)
	if err != nil {
		return nil, "", err
	}
	file := filepath.Join(dir, contextFile)
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, file, nil
	}
	if err != nil {
		return nil, file, errors.StorageFailed("read", file, err)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, file, errors.StorageFailed("decode", file, err)
	}
	if tf.Tables == nil {
		tf.Tables = make(map[string]*models.Table)
	}
	return &tf, file, nil
}

func (v *FS) ReadAllTables(space string) (map[string]*models.Table, error) {
	tf, _, err := v.readTableFile(space)
	if err != nil || tf == nil {
		return nil, err
	}
	for id, t := range tf.Tables {
		if t == nil {
			delete(tf.Tables, id)
			continue
		}
		if t.Schema.ID == "" {
			t.Schema.ID = id
		}
	}
	return tf.Tables, nil
}

func (v *FS) SaveTable(space string, table *models.Table, forceCreate bool) (bool, error) {
	if table == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "nil table")
	}
	tf, file, err := v.readTableFile(space)
	if err != nil {
		return false, err
	}
	if tf == nil {
		if !forceCreate {
			return false, nil
		}
		tf = &tableFile{Tables: make(map[string]*models.Table)}
	}
	id := table.Schema.ID
	if id == "" {
		id = MainTable
	}
	tf.Tables[id] = table
	tf.Schemas = tf.Schemas[:0]
	ids := make([]string, 0, len(tf.Tables))
	for k := range tf.Tables {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	for _, k := range ids {
		tf.Schemas = append(tf.Schemas, tf.Tables[k].Schema)
	}
	if err := writeYAML(file, tf); err != nil {
		return false, errors.StorageFailed("write", file, err)
	}
	return true, nil
}

func (v *FS) AllPaths(t models.PathType) ([]string, error) {
	var out []string
	err := filepath.WalkDir(v.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if full == v.root {
			return nil
		}
		p, ok := v.VaultPath(full)
		if !ok {
			return nil
		}
		if !v.Included(p, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case d.IsDir() && (t == "" || t == models.PathTypeFolder):
			out = append(out, p)
		case !d.IsDir() && (t == "" || t == models.PathTypeFile):
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.StorageFailed("walk", v.root, err)
	}
	sort.Strings(out)
	return out, nil
}

func (v *FS) ContextInitiated(space string) bool {
	dir, err := v.spaceDir(space)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, contextFile))
	return err == nil
}

func (v *FS) ReadSpaceDefinition(space string) (*models.SpaceDefinition, error) {
	dir, err := v.spaceDir(space)
	if err != nil {
		return nil, err
	}
	file := filepath.Join(dir, definitionFile)
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageFailed("read", file, err)
	}
	var def models.SpaceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.StorageFailed("decode", file, err)
	}
	return &def, nil
}

func (v *FS) SaveSpaceDefinition(space string, def *models.SpaceDefinition) error {
	dir, err := v.spaceDir(space)
	if err != nil {
		return err
	}
	file := filepath.Join(dir, definitionFile)
	if def == nil {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return errors.StorageFailed("remove", file, err)
		}
		return nil
	}
	if err := writeYAML(file, def); err != nil {
		return errors.StorageFailed("write", file, err)
	}
	return nil
}

func (v *FS) SaveMetadata(p string, meta map[string]interface{}) error {
	full, err := v.abs(p)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return errors.EntityNotFound("path", p)
	}
	if err != nil {
		return errors.StorageFailed("read", p, err)
	}
	_, body, err := frontmatter.Split(string(data))
	if err != nil {
		return errors.StorageFailed("parse", p, err)
	}
	out, err := frontmatter.Render(meta, body)
	if err != nil {
		return errors.StorageFailed("encode", p, err)
	}
	if err := atomicWrite(full, []byte(out)); err != nil {
		return errors.StorageFailed("write", p, err)
	}
	return nil
}

func (v *FS) Create(p string, t models.PathType) error {
	full, err := v.abs(p)
	if err != nil {
		return err
	}
	if t == models.PathTypeFolder {
		if err := os.MkdirAll(full, 0o755); err != nil {
			return errors.StorageFailed("create", p, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.StorageFailed("create", p, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("path '%s' already exists", p))
		}
		return errors.StorageFailed("create", p, err)
	}
	v.Invalidate()
	return f.Close()
}

func (v *FS) Rename(oldPath, newPath string) error {
	from, err := v.abs(oldPath)
	if err != nil {
		return err
	}
	to, err := v.abs(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return errors.StorageFailed("rename", newPath, err)
	}
	if err := os.Rename(from, to); err != nil {
		if os.IsNotExist(err) {
			return errors.EntityNotFound("path", oldPath)
		}
		return errors.StorageFailed("rename", oldPath, err)
	}
	v.Invalidate()
	return nil
}

func (v *FS) Delete(p string) error {
	var target string
	if models.IsSpacePath(p) {
		dir, err := v.spaceDir(p)
		if err != nil {
			return err
		}
		target = dir
	} else {
		full, err := v.abs(p)
		if err != nil {
			return err
		}
		target = full
	}
	if err := os.RemoveAll(target); err != nil {
		return errors.StorageFailed("delete", p, err)
	}
	v.Invalidate()
	return nil
}

func writeYAML(file string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return atomicWrite(file, data)
}

// atomicWrite writes content to a file via a temp file rename.
func atomicWrite(file string, data []byte) error {
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}
