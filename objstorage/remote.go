// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package objstorage

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// RemoteOptions configures the S3-backed FS: which bucket mirrors table and
// manifest files, and the key prefix under that bucket.
type RemoteOptions struct {
	Bucket     string
	FilePrefix string
	Region     string
}

// skipRemoteUpload reports whether name should never leave local disk: WAL
// segments churn too fast to mirror usefully, and .dbtmp files are
// write-then-rename staging that is never read back from remote storage.
func skipRemoteUpload(name string) bool {
	return strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".dbtmp")
}

// RemoteFS wraps a local FS, mirroring every non-skipped file it creates to
// S3 on Close and additionally re-uploading MANIFEST files on every Sync, so
// a reader attached to the bucket never sees a manifest older than the last
// durable local write.
type RemoteFS struct {
	local    FS
	opt      RemoteOptions
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewRemoteFS wraps local with an S3 mirror under opt.
func NewRemoteFS(local FS, opt RemoteOptions) (*RemoteFS, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(opt.Region)})
	if err != nil {
		return nil, err
	}
	return &RemoteFS{
		local:    local,
		opt:      opt,
		s3Client: s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (r *RemoteFS) key(name string) string {
	return r.opt.FilePrefix + "/" + name
}

// Create creates name locally and wraps the handle so it mirrors to S3 on
// Close/Sync.
func (r *RemoteFS) Create(name string) (File, error) {
	f, err := r.local.Create(name)
	if err != nil {
		return nil, err
	}
	return &remoteFile{local: f, name: name, fs: r}, nil
}

// OpenForAppend opens name locally for appending, wrapped the same as
// Create so a resumed write (e.g. a reused WAL) still mirrors on Sync.
func (r *RemoteFS) OpenForAppend(name string) (File, error) {
	f, err := r.local.OpenForAppend(name)
	if err != nil {
		return nil, err
	}
	return &remoteFile{local: f, name: name, fs: r}, nil
}

// Open opens name for reading, local-only: readers never need the mirror.
func (r *RemoteFS) Open(name string) (File, error) {
	return r.local.Open(name)
}

// Remove deletes name from S3 before removing it locally.
func (r *RemoteFS) Remove(name string) error {
	if !skipRemoteUpload(name) {
		_, _ = r.s3Client.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(r.opt.Bucket),
			Key:    aws.String(r.key(name)),
		})
	}
	return r.local.Remove(name)
}

// Rename renames locally, then re-uploads the file under its new name so
// the mirror does not retain the stale key.
func (r *RemoteFS) Rename(oldname, newname string) error {
	if err := r.local.Rename(oldname, newname); err != nil {
		return err
	}
	if skipRemoteUpload(newname) {
		return nil
	}
	f, err := r.local.Open(newname)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.uploader.Upload(&s3manager.UploadInput{
		Body:   bufio.NewReader(f),
		Bucket: aws.String(r.opt.Bucket),
		Key:    aws.String(r.key(newname)),
	})
	return err
}

func (r *RemoteFS) MkdirAll(dir string) error            { return r.local.MkdirAll(dir) }
func (r *RemoteFS) List(dir string) ([]string, error)     { return r.local.List(dir) }
func (r *RemoteFS) Stat(name string) (os.FileInfo, error) { return r.local.Stat(name) }
func (r *RemoteFS) PathJoin(elem ...string) string        { return r.local.PathJoin(elem...) }
func (r *RemoteFS) Lock(name string) (io.Closer, error)   { return r.local.Lock(name) }

// remoteFile wraps a local File, uploading to S3 on Close unconditionally
// and on Sync only for MANIFEST files: a manifest must be visible to remote
// readers as soon as it is durable, but an sstable only needs to exist in
// the mirror once it is finished.
type remoteFile struct {
	local File
	name  string
	fs    *RemoteFS
}

func (f *remoteFile) upload() error {
	if skipRemoteUpload(f.name) {
		return nil
	}
	_, err := f.fs.uploader.Upload(&s3manager.UploadInput{
		Body:   bufio.NewReader(f.local),
		Bucket: aws.String(f.fs.opt.Bucket),
		Key:    aws.String(f.fs.key(f.name)),
	})
	return err
}

func (f *remoteFile) Read(p []byte) (int, error)              { return f.local.Read(p) }
func (f *remoteFile) ReadAt(p []byte, off int64) (int, error)  { return f.local.ReadAt(p, off) }
func (f *remoteFile) Write(p []byte) (int, error)              { return f.local.Write(p) }
func (f *remoteFile) Stat() (os.FileInfo, error)               { return f.local.Stat() }

func (f *remoteFile) Close() error {
	_ = f.upload()
	return f.local.Close()
}

func (f *remoteFile) Sync() error {
	if strings.Contains(f.name, "MANIFEST") {
		_ = f.upload()
	}
	return f.local.Sync()
}
