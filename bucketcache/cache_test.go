package bucketcache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fathomdata/s3sign/bucketcache"
)

type CacheTestSuite struct {
	suite.Suite
}

func (s *CacheTestSuite) TestGetMissReturnsFalse() {
	c := bucketcache.NewCache()
	_, ok := c.Get("bucket")
	s.False(ok)
}

func (s *CacheTestSuite) TestUpdateThenGet() {
	c := bucketcache.NewCache()
	c.Update("my.bucket", bucketcache.Params{Region: "eu-west-1", UseVirtualHosting: false, Endpoint: "s3.eu-west-1.amazonaws.com"})

	p, ok := c.Get("my.bucket")
	s.Require().True(ok)
	s.Equal("eu-west-1", p.Region)
	s.False(p.UseVirtualHosting)
	s.Equal("s3.eu-west-1.amazonaws.com", p.Endpoint)
}

func (s *CacheTestSuite) TestUpdateOverwrites() {
	c := bucketcache.NewCache()
	c.Update("bucket", bucketcache.Params{Region: "us-east-1"})
	c.Update("bucket", bucketcache.Params{Region: "ap-south-1"})

	p, ok := c.Get("bucket")
	s.Require().True(ok)
	s.Equal("ap-south-1", p.Region)
}

func (s *CacheTestSuite) TestClearRemovesAllEntries() {
	c := bucketcache.NewCache()
	c.Update("a", bucketcache.Params{Region: "us-east-1"})
	c.Update("b", bucketcache.Params{Region: "eu-west-1"})

	c.Clear()

	_, ok := c.Get("a")
	s.False(ok)
	_, ok = c.Get("b")
	s.False(ok)
}

func (s *CacheTestSuite) TestConcurrentUpdatesDoNotRace() {
	c := bucketcache.NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Update("bucket", bucketcache.Params{Region: "us-east-1"})
			c.Get("bucket")
		}(i)
	}
	wg.Wait()

	_, ok := c.Get("bucket")
	s.True(ok)
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
