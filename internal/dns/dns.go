package dns

import (
	"strings"
	"sync"

	miekg "github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
)

// DMARCLabel is the label DMARC policy records are published under.
const DMARCLabel = "_dmarc"

// Normalize lowercases name and strips the trailing root dot.
func Normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// OrgDomain returns the organizational domain of name using the public
// suffix list. Names the list cannot handle fall back to their last two
// labels.
func OrgDomain(name string) string {
	name = Normalize(name)
	if org, err := publicsuffix.EffectiveTLDPlusOne(name); err == nil {
		return org
	}
	labels := miekg.SplitDomainName(name)
	if len(labels) <= 2 {
		return name
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// SubDomain returns the labels of name left of its organizational domain,
// or "" when name is an organizational domain itself.
func SubDomain(name string) string {
	name = Normalize(name)
	org := OrgDomain(name)
	return strings.TrimSuffix(strings.TrimSuffix(name, org), ".")
}

// IsOrgDomain reports whether name is its own organizational domain.
func IsOrgDomain(name string) bool {
	name = Normalize(name)
	return miekg.CountLabel(name) >= 2 && OrgDomain(name) == name
}

// IsDMARCName reports whether name is the DMARC policy name of an
// organizational domain, e.g. _dmarc.example.com.
func IsDMARCName(name string) bool {
	name = Normalize(name)
	if _, ok := miekg.IsDomainName(name); !ok {
		return false
	}
	rest, found := strings.CutPrefix(name, DMARCLabel+".")
	return found && IsOrgDomain(rest)
}

// DMARCName returns the name the DMARC record of domain is published at.
func DMARCName(domain string) string {
	return miekg.Fqdn(DMARCLabel + "." + Normalize(domain))
}

// OrgDomainCache memoizes OrgDomain for workers that see the same names
// over and over. It is safe for concurrent use.
type OrgDomainCache struct {
	mutex   sync.RWMutex
	cache   map[string]string
	maxSize int
}

// NewOrgDomainCache returns a cache holding at most maxSize entries. The
// cache is emptied once it is full.
func NewOrgDomainCache(maxSize int) *OrgDomainCache {
	return &OrgDomainCache{
		cache:   make(map[string]string),
		maxSize: maxSize,
	}
}

func (c *OrgDomainCache) OrgDomain(name string) string {
	if val, ok := c.getCacheEntry(name); ok {
		return val
	}
	org := OrgDomain(name)
	c.updateCache(name, org)
	return org
}

func (c *OrgDomainCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}

func (c *OrgDomainCache) updateCache(name, org string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.cache) >= c.maxSize {
		clear(c.cache)
	}
	c.cache[name] = org
}

func (c *OrgDomainCache) getCacheEntry(name string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	val, ok := c.cache[name]
	return val, ok
}
