package rawdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/everFinance/domainsplit/schema"
)

const (
	S3Type = "s3"

	// undo log of the batch being applied; outside every state bucket prefix
	batchLogKey = "_batch/pending"
)

var errS3Recovering = errors.New("s3 batch not yet rolled back")

// S3DB keeps the whole state in one s3 bucket; the state bucket name is the key prefix.
//
// S3 has no multi-object transaction. WriteBatch first stores the prior
// image of every key it touches as one undo log object, then applies the
// batch and removes the log. A batch that fails or is interrupted after the
// log is written is rolled back before the store serves anything else, so
// readers see either the whole batch or none of it.
type S3DB struct {
	s3Api  s3iface.S3API
	bucket string

	mu      sync.Mutex
	pending bool // an undo log may be left in the bucket
}

func NewS3DB(accKey, secretKey, region, bucket, endpoint string) (*S3DB, error) {
	mySession := session.Must(session.NewSession())
	cred := credentials.NewStaticCredentials(accKey, secretKey, "")
	cfgs := aws.NewConfig().WithRegion(region).WithCredentials(cred)
	if endpoint != "" {
		cfgs.WithEndpoint(endpoint)
		// ip endpoints (minio etc.) need path-style addressing
		if u, err := url.Parse(endpoint); err == nil && net.ParseIP(u.Hostname()) != nil {
			cfgs.S3ForcePathStyle = aws.Bool(true)
		}
	}
	s3Api := s3.New(mySession, cfgs)
	bucket = strings.ToLower(bucket) // s3 bucket name only accept lower case
	_, err := s3Api.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !isAwsCode(err, s3.ErrCodeBucketAlreadyOwnedByYou) {
		return nil, err
	}

	db := &S3DB{s3Api: s3Api, bucket: bucket, pending: true}
	if err := db.recover(); err != nil {
		return nil, err
	}
	log.Info("run with s3 success", "bucket", bucket)
	return db, nil
}

func (s *S3DB) Type() string {
	return S3Type
}

func (s *S3DB) Put(bucket, key string, value []byte) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	return s.putObject(objectKey(bucket, key), value)
}

func (s *S3DB) putObject(key string, value []byte) (err error) {
	_, err = s.s3Api.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(value),
	})
	return
}

func (s *S3DB) Get(bucket, key string) (data []byte, err error) {
	if err = s.ready(); err != nil {
		return
	}
	return s.getObject(objectKey(bucket, key))
}

func (s *S3DB) getObject(key string) (data []byte, err error) {
	out, err := s.s3Api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isAwsCode(err, s3.ErrCodeNoSuchKey) {
			return nil, schema.ErrNotExist
		}
		return nil, err
	}
	defer out.Body.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(out.Body)
	return buf.Bytes(), err
}

func (s *S3DB) GetAllKey(bucket string) (keys []string, err error) {
	if err = s.ready(); err != nil {
		return
	}
	keys = make([]string, 0)
	prefix := bucket + "/"
	err = s.s3Api.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, item := range page.Contents {
			keys = append(keys, strings.TrimPrefix(*item.Key, prefix))
		}
		return true
	})
	return
}

func (s *S3DB) Delete(bucket, key string) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	return s.deleteObject(objectKey(bucket, key))
}

func (s *S3DB) deleteObject(key string) (err error) {
	_, err = s.s3Api.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return
}

func (s *S3DB) Exist(bucket, key string) bool {
	if s.ready() != nil {
		return false
	}
	_, err := s.s3Api.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objectKey(bucket, key))})
	return err == nil
}

func (s *S3DB) Close() (err error) {
	return
}

// WriteBatch applies ops all or nothing. An error after the undo log is
// stored rolls the batch back, at once or on the next access.
func (s *S3DB) WriteBatch(ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recover(); err != nil {
		return err
	}
	undo := make([]Op, 0, len(ops))
	for _, op := range ops {
		prev, err := s.getObject(objectKey(op.Bucket, op.Key))
		switch {
		case errors.Is(err, schema.ErrNotExist):
			undo = append(undo, Op{Bucket: op.Bucket, Key: op.Key, Delete: true})
		case err != nil:
			return err
		default:
			undo = append(undo, Op{Bucket: op.Bucket, Key: op.Key, Value: prev})
		}
	}
	data, err := json.Marshal(undo)
	if err != nil {
		return err
	}
	if err := s.putObject(batchLogKey, data); err != nil {
		return err
	}
	s.pending = true
	if err := s.apply(ops); err != nil {
		if rerr := s.recover(); rerr != nil {
			log.Error("roll back s3 batch failed", "err", rerr)
		}
		return err
	}
	if err := s.deleteObject(batchLogKey); err != nil {
		// the log still holds prior images; the next access rolls back
		log.Error("drop s3 undo log failed", "err", err)
		return err
	}
	s.pending = false
	return nil
}

func (s *S3DB) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recover()
}

// recover restores the prior images of an interrupted batch. Callers hold mu.
func (s *S3DB) recover() error {
	if !s.pending {
		return nil
	}
	data, err := s.getObject(batchLogKey)
	if errors.Is(err, schema.ErrNotExist) {
		s.pending = false
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errS3Recovering, err)
	}
	undo := make([]Op, 0)
	if err := json.Unmarshal(data, &undo); err != nil {
		return fmt.Errorf("%w: %w", errS3Recovering, err)
	}
	log.Warn("roll back interrupted s3 batch", "ops", len(undo))
	if err := s.apply(undo); err != nil {
		return fmt.Errorf("%w: %w", errS3Recovering, err)
	}
	if err := s.deleteObject(batchLogKey); err != nil {
		return fmt.Errorf("%w: %w", errS3Recovering, err)
	}
	s.pending = false
	return nil
}

// apply writes ops one by one. Puts and deletes are idempotent, so a
// rollback after a partial apply is safe to repeat.
func (s *S3DB) apply(ops []Op) error {
	for _, op := range ops {
		var err error
		if op.Delete {
			err = s.deleteObject(objectKey(op.Bucket, op.Key))
		} else {
			err = s.putObject(objectKey(op.Bucket, op.Key), op.Value)
		}
		if err != nil {
			log.Error("apply s3 batch failed", "err", err, "bucket", op.Bucket, "key", op.Key)
			return err
		}
	}
	return nil
}
