package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/deusflow/sportsdesk/internal/news"
)

const (
	prefixArticle     = "article:id:"
	prefixArticleURL  = "article:url:"
	prefixPost        = "post:id:"
	prefixPostArticle = "post:article:"
)

// BadgerStore keeps articles and posts in an embedded Badger database.
// Writes are serialised; readers see committed snapshots only.
type BadgerStore struct {
	db       *badger.DB
	articles *badger.Sequence
	posts    *badger.Sequence
	mu       sync.Mutex
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens the database at path. An empty path keeps everything
// in memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // silence badger's own logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	articles, err := db.GetSequence([]byte("seq:article"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("article sequence: %w", err)
	}
	posts, err := db.GetSequence([]byte("seq:post"), 64)
	if err != nil {
		articles.Release()
		db.Close()
		return nil, fmt.Errorf("post sequence: %w", err)
	}

	return &BadgerStore{db: db, articles: articles, posts: posts}, nil
}

// OpenBadgerReadOnly opens an existing database for reading. Badger holds a
// directory lock, so this fails while a writer has the same path open.
func OpenBadgerReadOnly(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("open badger: read-only mode needs a path")
	}
	opts := badger.DefaultOptions(path).WithReadOnly(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger read-only: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the sequences and closes the database.
func (s *BadgerStore) Close() error {
	var errs []error
	if s.articles != nil {
		errs = append(errs, s.articles.Release())
	}
	if s.posts != nil {
		errs = append(errs, s.posts.Release())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func articleKey(id int64) []byte      { return []byte(fmt.Sprintf("%s%020d", prefixArticle, id)) }
func articleURLKey(url string) []byte { return []byte(prefixArticleURL + url) }
func postKey(id int64) []byte         { return []byte(fmt.Sprintf("%s%020d", prefixPost, id)) }

func postArticleKey(articleID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixPostArticle, articleID))
}

func nextID(seq *badger.Sequence) (int64, error) {
	if seq == nil {
		return 0, ErrReadOnly
	}
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func lookupID(txn *badger.Txn, key []byte) (int64, error) {
	var id int64
	if err := getJSON(txn, key, &id); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// InsertArticle implements Store.
func (s *BadgerStore) InsertArticle(ctx context.Context, a news.Article) (news.Article, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		stored   news.Article
		inserted bool
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		id, err := lookupID(txn, articleURLKey(a.URL))
		if err == nil {
			return getJSON(txn, articleKey(id), &stored)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		if a.ID, err = nextID(s.articles); err != nil {
			return err
		}
		if err := setJSON(txn, articleURLKey(a.URL), a.ID); err != nil {
			return err
		}
		stored, inserted = a, true
		return setJSON(txn, articleKey(a.ID), a)
	})
	if err != nil {
		return news.Article{}, false, fmt.Errorf("insert article %s: %w", a.URL, err)
	}
	return stored, inserted, nil
}

// GetArticle implements Store.
func (s *BadgerStore) GetArticle(ctx context.Context, url string) (news.Article, error) {
	var a news.Article
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := lookupID(txn, articleURLKey(url))
		if err != nil {
			return err
		}
		return getJSON(txn, articleKey(id), &a)
	})
	return a, err
}

// GetArticleByID implements Store.
func (s *BadgerStore) GetArticleByID(ctx context.Context, id int64) (news.Article, error) {
	var a news.Article
	err := s.db.View(func(txn *badger.Txn) error {
		err := getJSON(txn, articleKey(id), &a)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	})
	return a, err
}

// updateArticle applies fn to the stored article in a single transaction.
func (s *BadgerStore) updateArticle(url string, fn func(*news.Article) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		id, err := lookupID(txn, articleURLKey(url))
		if err != nil {
			return err
		}
		var a news.Article
		if err := getJSON(txn, articleKey(id), &a); err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		return setJSON(txn, articleKey(id), a)
	})
}

// UpdateContent implements Store.
func (s *BadgerStore) UpdateContent(ctx context.Context, url, content string) error {
	return s.updateArticle(url, func(a *news.Article) error {
		a.Content = content
		a.ContentFetched = true
		return nil
	})
}

// RecordFetchFailure implements Store.
func (s *BadgerStore) RecordFetchFailure(ctx context.Context, url string) error {
	return s.updateArticle(url, func(a *news.Article) error {
		a.FetchAttempts++
		return nil
	})
}

// UpdateScores implements Store.
func (s *BadgerStore) UpdateScores(ctx context.Context, url string, sc news.Scores) error {
	return s.updateArticle(url, func(a *news.Article) error {
		a.Scores = sc
		return nil
	})
}

// MarkPosted implements Store.
func (s *BadgerStore) MarkPosted(ctx context.Context, articleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		var a news.Article
		if err := getJSON(txn, articleKey(articleID), &a); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		if a.Posted {
			return ErrAlreadyPosted
		}
		a.Posted = true
		return setJSON(txn, articleKey(articleID), a)
	})
}

// InsertPost implements Store.
func (s *BadgerStore) InsertPost(ctx context.Context, p news.Post) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		var a news.Article
		if err := getJSON(txn, articleKey(p.ArticleID), &a); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		if _, err := txn.Get(postArticleKey(p.ArticleID)); err == nil {
			return ErrAlreadyPosted
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		var err error
		if p.ID, err = nextID(s.posts); err != nil {
			return err
		}
		if err := setJSON(txn, postArticleKey(p.ArticleID), p.ID); err != nil {
			return err
		}
		a.Posted = true
		if err := setJSON(txn, articleKey(p.ArticleID), a); err != nil {
			return err
		}
		return setJSON(txn, postKey(p.ID), p)
	})
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

// SetPostPublished implements Store.
func (s *BadgerStore) SetPostPublished(ctx context.Context, postID int64, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		var p news.Post
		if err := getJSON(txn, postKey(postID), &p); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("post %d: %w", postID, ErrNotFound)
			}
			return err
		}
		switch channel {
		case ChannelTelegram:
			p.TelegramPublished = true
		case ChannelTwitter:
			p.TwitterPublished = true
		default:
			return fmt.Errorf("%w: %s", ErrUnknownChan, channel)
		}
		return setJSON(txn, postKey(postID), p)
	})
}

func (s *BadgerStore) scanArticles(fn func(news.Article)) error {
	return s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixArticle)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var a news.Article
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &a) }); err != nil {
				return err
			}
			fn(a)
		}
		return nil
	})
}

func (s *BadgerStore) scanPosts(fn func(news.Post)) error {
	return s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixPost)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p news.Post
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return err
			}
			fn(p)
		}
		return nil
	})
}

// TodayUnpostedScored implements Store.
func (s *BadgerStore) TodayUnpostedScored(ctx context.Context, day time.Time) ([]news.Article, error) {
	var out []news.Article
	err := s.scanArticles(func(a news.Article) {
		if !a.Posted && a.Scores.Scored && news.SameDay(a.ReceivedAt, day) {
			out = append(out, a)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan articles: %w", err)
	}
	return out, nil
}

// TodayPostCaptions implements Store.
func (s *BadgerStore) TodayPostCaptions(ctx context.Context, day time.Time) ([]string, error) {
	var out []string
	err := s.scanPosts(func(p news.Post) {
		if news.SameDay(p.CreatedAt, day) {
			out = append(out, p.HistoryLine())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	return out, nil
}

// CountTodayPosts implements Store.
func (s *BadgerStore) CountTodayPosts(ctx context.Context, day time.Time) (int, error) {
	n := 0
	err := s.scanPosts(func(p news.Post) {
		if news.SameDay(p.CreatedAt, day) {
			n++
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scan posts: %w", err)
	}
	return n, nil
}
