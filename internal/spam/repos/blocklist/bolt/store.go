package bolt

import (
	"encoding/binary"
	"errors"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/repos/blocklist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements blocklist.Store using bbolt.
//
// Layout:
//   - exact:  canonical name → rule value
//   - suffix: reversed canonical name → rule value, so a name's parents share key prefixes
//   - meta:   version and updated (big-endian uint64)
//
// A rule value is 8 bytes of big-endian AddedAt unix seconds followed by the source.
type boltStore struct {
	db *bbolt.DB
}

// bucketCreator is the subset of *bbolt.Tx used when ensuring buckets exist.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

// ensureBucketsFn is a seam for tests.
var ensureBucketsFn = func(tx bucketCreator) error { return ensureBuckets(tx) }

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (blocklist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// GetFirstMatch returns the exact rule for name if present, otherwise the most
// specific suffix rule covering name.
func (s *boltStore) GetFirstMatch(name string) (domain.BlockRule, bool, error) {
	var (
		rule  domain.BlockRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			if v := b.Get([]byte(name)); v != nil {
				r, err := decodeRule(name, domain.BlockRuleExact, v)
				if err != nil {
					return err
				}
				rule, found = r, true
				return nil
			}
		}

		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		for a := name; a != ""; {
			if v := b.Get([]byte(reverse(a))); v != nil {
				r, err := decodeRule(a, domain.BlockRuleSuffix, v)
				if err != nil {
					return err
				}
				if !r.Covers(name) {
					return errors.New("suffix key " + a + " does not cover " + name)
				}
				rule, found = r, true
				return nil
			}
			i := strings.IndexByte(a, '.')
			if i < 0 {
				break
			}
			a = a[i+1:]
		}
		return nil
	})
	return rule, found, err
}

// RebuildAll replaces every rule and the metadata in a single transaction.
func (s *boltStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
				return err
			}
		}
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}

		exact := tx.Bucket(bucketExact)
		suffix := tx.Bucket(bucketSuffix)
		for _, r := range rules {
			switch r.Kind {
			case domain.BlockRuleExact:
				if err := exact.Put([]byte(r.Name), encodeRule(r)); err != nil {
					return err
				}
			case domain.BlockRuleSuffix:
				if err := suffix.Put([]byte(reverse(r.Name)), encodeRule(r)); err != nil {
					return err
				}
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, u64(version)); err != nil {
			return err
		}
		return meta.Put(keyUpdated, u64(uint64(updatedUnix)))
	})
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			st.ExactCount = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			st.SuffixCount = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

func encodeRule(r domain.BlockRule) []byte {
	buf := make([]byte, 8, 8+len(r.Source))
	binary.BigEndian.PutUint64(buf, uint64(r.AddedAt.Unix()))
	return append(buf, r.Source...)
}

func decodeRule(name string, kind domain.BlockRuleKind, v []byte) (domain.BlockRule, error) {
	if len(v) < 8 {
		return domain.BlockRule{}, errors.New("corrupt block rule value for " + name)
	}
	return domain.BlockRule{
		Name:    name,
		Kind:    kind,
		Source:  string(v[8:]),
		AddedAt: time.Unix(int64(binary.BigEndian.Uint64(v[:8])), 0),
	}, nil
}

func u64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// reverse must match the repository's Bloom key reversal.
func reverse(s string) string {
	rs := []rune(s)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}

var _ blocklist.Store = (*boltStore)(nil)
