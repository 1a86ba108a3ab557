// Package credentials holds the API identities used against the social
// platform and spreads read traffic across a rotation pool.
package credentials

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// Set is one platform API identity. Immutable after load.
type Set struct {
	Identifier        string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

// Pool is a rotation pool of read identities plus one designated primary
// identity for writes.
//
// Reads (trend/search calls) pick uniformly at random to spread rate-limit
// consumption. Writes always use the primary so published content stays
// attributable to one account. Rotation is stateless; it does not track
// per-credential quota.
type Pool struct {
	primary Set
	read    []Set

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPool(primary Set, read []Set, seed int64) (*Pool, error) {
	if strings.TrimSpace(primary.BearerToken) == "" && strings.TrimSpace(primary.AccessToken) == "" {
		return nil, errors.New("primary credential has no token")
	}
	if len(read) == 0 {
		return nil, errors.New("read credential pool is empty")
	}
	return &Pool{
		primary: primary,
		read:    append([]Set(nil), read...),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Pick returns one read identity, chosen uniformly at random.
func (p *Pool) Pick() Set {
	p.mu.Lock()
	i := p.rng.Intn(len(p.read))
	p.mu.Unlock()
	return p.read[i]
}

// Primary returns the single write identity. Never rotated.
func (p *Pool) Primary() Set { return p.primary }

// Size returns the number of read identities.
func (p *Pool) Size() int { return len(p.read) }

// FromEnv loads the primary identity from PLATFORM_* variables and the read
// pool from PLATFORM1_*, PLATFORM2_*, ... in sequence, stopping at the first
// missing slot. Call after godotenv has populated the environment.
func FromEnv(seed int64) (*Pool, error) {
	primary := setFromEnv("PLATFORM")
	var read []Set
	for i := 1; ; i++ {
		prefix := fmt.Sprintf("PLATFORM%d", i)
		s := setFromEnv(prefix)
		if strings.TrimSpace(s.BearerToken) == "" {
			break
		}
		s.Identifier = strings.ToLower(prefix)
		read = append(read, s)
	}
	return NewPool(primary, read, seed)
}

func setFromEnv(prefix string) Set {
	return Set{
		Identifier:        strings.ToLower(prefix),
		APIKey:            os.Getenv(prefix + "_API_KEY"),
		APISecret:         os.Getenv(prefix + "_API_SECRET"),
		AccessToken:       os.Getenv(prefix + "_ACCESS_TOKEN"),
		AccessTokenSecret: os.Getenv(prefix + "_ACCESS_TOKEN_SECRET"),
		BearerToken:       os.Getenv(prefix + "_BEARER_TOKEN"),
	}
}
