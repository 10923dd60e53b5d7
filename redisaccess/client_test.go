package redisaccess_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	access "github.com/JohnPlummer/jp-go-access"
	"github.com/JohnPlummer/jp-go-access/redisaccess"
)

// replyError is a server reply as go-redis reports it.
type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

var quiet = access.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

var _ = Describe("Classifier", func() {
	DescribeTable("IsRetryable",
		func(err error, expected bool) {
			Expect(redisaccess.Classifier{}.IsRetryable(err)).To(Equal(expected))
		},
		Entry("nil", nil, false),
		Entry("missing key", redis.Nil, false),
		Entry("closed client", redis.ErrClosed, false),
		Entry("canceled", context.Canceled, false),
		Entry("wrong type", replyError("WRONGTYPE Operation against a key holding the wrong kind of value"), false),
		Entry("no auth", replyError("NOAUTH Authentication required."), false),
		Entry("wrong password", replyError("WRONGPASS invalid username-password pair"), false),
		Entry("generic error reply", replyError("ERR unknown command 'FOO'"), false),
		Entry("loading", replyError("LOADING Redis is loading the dataset in memory"), true),
		Entry("read only replica", replyError("READONLY You can't write against a read only replica."), true),
		Entry("cluster moved", replyError("MOVED 3999 127.0.0.1:6381"), true),
		Entry("dial failure", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true),
		Entry("wrapped dial failure", fmt.Errorf("get: %w", &net.OpError{Op: "dial", Err: errors.New("refused")}), true),
	)
})

var _ = Describe("Client", func() {
	It("rejects malformed URLs", func() {
		_, err := redisaccess.Open(redisaccess.Config{URL: "not-a-url"})
		Expect(err).To(HaveOccurred())
	})

	It("exhausts its retries against an unreachable server", func() {
		client, err := redisaccess.Open(redisaccess.Config{URL: "redis://127.0.0.1:1/0"},
			quiet,
			access.WithMaxAttempts(2),
			access.WithRetryWait(time.Millisecond),
			access.WithDeadline(2*time.Second),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)

		_, _, err = client.Get(context.Background(), "missing")
		Expect(err).To(MatchError(access.ErrExhausted))

		var opErr *access.OperationError
		Expect(errors.As(err, &opErr)).To(BeTrue())
		Expect(opErr.Attempts).To(Equal(2))
	})
})

// These specs need a live server, e.g. ACCESS_TEST_REDIS_URL=redis://localhost:6379/15.
var _ = Describe("Client against a live server", Ordered, func() {
	var (
		ctx    context.Context
		client *redisaccess.Client
		prefix string
	)

	BeforeAll(func() {
		url := os.Getenv("ACCESS_TEST_REDIS_URL")
		if url == "" {
			Skip("ACCESS_TEST_REDIS_URL not set")
		}

		var err error
		client, err = redisaccess.Open(redisaccess.Config{URL: url}, quiet, access.WithBatchSize(3))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(client.Close)

		ctx = context.Background()
		prefix = fmt.Sprintf("access-test:%d:", time.Now().UnixNano())
	})

	key := func(name string) string { return prefix + name }

	AfterAll(func() {
		if client != nil {
			_, _ = client.Del(ctx, key("kv"), key("hash"), key("zset"), key("list"))
		}
	})

	It("stores and reads plain keys", func() {
		Expect(client.Set(ctx, key("kv"), "value", time.Minute)).To(Succeed())

		v, ok, err := client.Get(ctx, key("kv"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("value"))

		_, ok, err = client.Get(ctx, key("absent"))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("stores and reads hashes", func() {
		_, err := client.HSet(ctx, key("hash"), "a", "1", "b", "2")
		Expect(err).NotTo(HaveOccurred())

		v, ok, err := client.HGet(ctx, key("hash"), "b")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("2"))

		all, err := client.HGetAll(ctx, key("hash"))
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(Equal(map[string]string{"a": "1", "b": "2"}))
	})

	It("ranges over sorted sets", func() {
		members := []redis.Z{{Score: 1, Member: "one"}, {Score: 2, Member: "two"}, {Score: 3, Member: "three"}, {Score: 4, Member: "four"}}
		_, err := client.ZAdd(ctx, key("zset"), members...)
		Expect(err).NotTo(HaveOccurred())

		top, err := client.ZRange(ctx, key("zset"), 0, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(top).To(Equal([]string{"one", "two"}))

		mid, err := client.ZRangeByScore(ctx, key("zset"), "(1", "3")
		Expect(err).NotTo(HaveOccurred())
		Expect(mid).To(Equal([]string{"two", "three"}))

		stream, err := client.StreamSortedSet(ctx, key("zset"))
		Expect(err).NotTo(HaveOccurred())
		var sizes []int
		for batch, err := range stream.All(ctx) {
			Expect(err).NotTo(HaveOccurred())
			sizes = append(sizes, batch.Len())
		}
		Expect(sizes).To(Equal([]int{3, 1}))
	})

	It("streams lists in windows", func() {
		_, err := seedList(ctx, key("list"))
		Expect(err).NotTo(HaveOccurred())

		stream, err := client.StreamList(ctx, key("list"))
		Expect(err).NotTo(HaveOccurred())

		var got []string
		for batch, err := range stream.All(ctx) {
			Expect(err).NotTo(HaveOccurred())
			got = append(got, batch.Records...)
		}
		Expect(got).To(Equal([]string{"a", "b", "c", "d", "e", "f", "g"}))
	})

	It("fails fatally on a type mismatch", func() {
		_, err := client.HGetAll(ctx, key("kv"))
		Expect(err).To(MatchError(access.ErrFatal))
	})

	It("publishes messages", func() {
		receivers, err := client.Publish(ctx, key("channel"), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(receivers).To(BeNumerically(">=", 0))
	})
})

// seedList fills a list through a plain go-redis client.
func seedList(ctx context.Context, key string) (int64, error) {
	opts, err := redis.ParseURL(os.Getenv("ACCESS_TEST_REDIS_URL"))
	if err != nil {
		return 0, err
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	return rdb.RPush(ctx, key, "a", "b", "c", "d", "e", "f", "g").Result()
}
