package engine

import (
	"strings"
	"sync"
)

type TrieNode struct {
	children map[byte]*TrieNode
	isEnd    bool
}

// DomainTrie matches a domain and all of its subdomains.
type DomainTrie struct {
	root *TrieNode
	size int
	lock sync.RWMutex
}

func NewDomainTrie() *DomainTrie {
	return &DomainTrie{
		root: &TrieNode{
			children: make(map[byte]*TrieNode),
		},
	}
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// insert walks the domain in REVERSE order: "bad.com" -> 'm', 'o', 'c', '.', 'd', 'a', 'b'.
// Callers hold the write lock.
func (t *DomainTrie) insert(domain string) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return
	}

	node := t.root
	for i := len(domain) - 1; i >= 0; i-- {
		char := domain[i]
		if node.children[char] == nil {
			node.children[char] = &TrieNode{
				children: make(map[byte]*TrieNode),
			}
		}
		node = node.children[char]
	}
	if !node.isEnd {
		node.isEnd = true
		t.size++
	}
}

func (t *DomainTrie) Insert(domain string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.insert(domain)
}

// BulkInsert takes the lock once for the whole batch.
func (t *DomainTrie) BulkInsert(domains []string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, d := range domains {
		t.insert(d)
	}
}

// Contains reports whether domain, or a parent domain of it, was inserted.
// "google.com" matches "ads.google.com" but not "notgoogle.com".
func (t *DomainTrie) Contains(domain string) bool {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false
	}

	t.lock.RLock()
	defer t.lock.RUnlock()

	node := t.root
	for i := len(domain) - 1; i >= 0; i-- {
		char := domain[i]

		// A stored parent only counts on a label boundary.
		if node.isEnd && char == '.' {
			return true
		}

		next, exists := node.children[char]
		if !exists {
			return false
		}
		node = next
	}

	return node.isEnd
}

// Len returns the number of distinct domains stored.
func (t *DomainTrie) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.size
}
