package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

// StageZip is the name of the zip stage.
const StageZip = "zip"

// ZipOptions configures the zip stage.
type ZipOptions struct {
	OutDir string // where archives are written; empty means next to the job directory
	Flat   bool   // store base names only instead of relative paths
}

// Zip packs the files of each job into one archive.
type Zip struct {
	storage  fileStorage
	observer Observer
	opts     ZipOptions
}

// NewZip creates the zip stage.
func NewZip(fs fileStorage, opts ZipOptions, obs Observer) *Zip {
	return &Zip{storage: fs, observer: observerOrNop(obs), opts: opts}
}

// Name returns the stage name.
func (z *Zip) Name() string {
	return StageZip
}

// Process writes one archive per job. A job whose archive path was already
// written by an earlier job of the same run fails with ErrNameCollision.
func (z *Zip) Process(ctx context.Context, jobs []model.Job) []model.Job {
	claimed := make(outputs, len(jobs))

	return run(ctx, z.Name(), jobs, func(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
		return z.processJob(ctx, job, res, claimed)
	})
}

type member struct {
	path string
	name string
	size int64
	info os.FileInfo
}

func (z *Zip) processJob(ctx context.Context, job model.Job, res *model.StageResult, claimed outputs) (model.Job, error) {
	dir := job.Dir()

	outDir := z.opts.OutDir
	if outDir == "" {
		outDir = filepath.Dir(absPath(dir))
	}
	archive := filepath.Join(outDir, job.Name()+".zip")
	if err := claimed.claim(archive, job.SourceDir); err != nil {
		return job, err
	}

	files := job.Files
	if len(files) == 0 {
		var err error
		if files, err = z.listFiles(dir, archive); err != nil {
			return job, err
		}
	}

	members, err := z.members(dir, files)
	if err != nil {
		return job, err
	}

	if err := z.storage.MkdirAll(outDir); err != nil {
		return job, fsError("create", outDir, err)
	}

	z.observer.OnJobStart(z.Name(), job, len(members))

	size, err := z.write(ctx, archive, members)
	if err != nil {
		return job, err
	}

	for _, m := range members {
		res.BytesBefore += m.size
	}
	res.Processed = len(members)
	res.BytesAfter = size

	zlog.Logger.Info().
		Str("archive", archive).
		Int("files", len(members)).
		Str("size", humanize.Bytes(uint64(size))).
		Msg("saved zip file")

	job.Archive = archive

	return job, nil
}

// listFiles returns every regular file under dir except archive itself.
func (z *Zip) listFiles(dir, archive string) ([]string, error) {
	var files []string

	err := z.storage.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || file.IsTemp(path) || absPath(path) == absPath(archive) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fsError("list", dir, err)
	}

	return files, nil
}

// members computes archive names and rejects duplicates before anything is
// written.
func (z *Zip) members(dir string, files []string) ([]member, error) {
	root := absPath(dir)
	owners := make(map[string]string, len(files))
	members := make([]member, 0, len(files))

	for _, f := range files {
		name := filepath.Base(f)
		if !z.opts.Flat && within(root, absPath(f)) {
			rel, err := filepath.Rel(root, absPath(f))
			if err == nil {
				name = filepath.ToSlash(rel)
			}
		}

		if owner, ok := owners[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both archive as %q", ErrNameCollision, owner, f, name)
		}
		owners[name] = f

		info, err := z.storage.Stat(f)
		if err != nil {
			return nil, fsError("stat", f, err)
		}
		members = append(members, member{path: f, name: name, size: info.Size(), info: info})
	}

	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })

	return members, nil
}

// write streams the archive into storage. The target only appears once the
// archive is complete.
func (z *Zip) write(ctx context.Context, archive string, members []member) (int64, error) {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := z.writeArchive(ctx, pw, members)
		_ = pw.CloseWithError(err)
		done <- err
	}()

	n, err := z.storage.Save(ctx, archive, pr)
	// Unblock the writer if Save gave up before draining the pipe.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	werr := <-done
	if err != nil {
		return 0, fsError("save", archive, err)
	}
	if werr != nil {
		return 0, werr
	}

	return n, nil
}

func (z *Zip) writeArchive(ctx context.Context, w io.Writer, members []member) error {
	zw := zip.NewWriter(w)

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}

		z.observer.OnItemStart(z.Name(), m.path)

		hdr, err := zip.FileInfoHeader(m.info)
		if err != nil {
			return fsError("describe", m.path, err)
		}
		hdr.Name = m.name
		hdr.Method = compressionMethod(m.name)

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fsError("add", m.path, err)
		}

		src, err := z.storage.Load(ctx, m.path)
		if err != nil {
			return fsError("open", m.path, err)
		}
		_, err = io.Copy(fw, src)
		_ = src.Close()
		if err != nil {
			return fsError("read", m.path, err)
		}

		z.observer.OnItemDone(z.Name(), m.path, m.size, m.size)
	}

	if err := zw.Close(); err != nil {
		return fsError("finish", "archive", err)
	}

	return nil
}

// compressionMethod stores already compressed images and deflates the rest.
func compressionMethod(name string) uint16 {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".zip":
		return zip.Store
	default:
		return zip.Deflate
	}
}
