package analysis

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"lde/internal/elfx"
)

// SymbolScanResult holds the hookable functions and the entry points among them.
type SymbolScanResult struct {
	Entrypoints []elfx.Func
	Funcs       []elfx.Func
}

// symbolCache provides goroutine-safe caching for demangling.
type symbolCache struct {
	mu            sync.Mutex
	demangleCache map[string]string
	hitCount      map[string]int
	cacheEnabled  bool
}

var cache = &symbolCache{
	demangleCache: make(map[string]string),
	hitCount:      make(map[string]int),
	cacheEnabled:  true,
}

// SetDemangleCache turns the demangle cache on or off.
func SetDemangleCache(enabled bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.cacheEnabled = enabled
}

// CachedDemangle performs demangling with caching support.
func CachedDemangle(mangled string) string {
	cache.mu.Lock()
	if !cache.cacheEnabled {
		cache.mu.Unlock()
		return demangle.Filter(mangled, demangle.NoClones)
	}
	if cached, exists := cache.demangleCache[mangled]; exists {
		cache.hitCount[mangled]++
		cache.mu.Unlock()
		return cached
	}
	cache.mu.Unlock()

	demangled := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	if _, exists := cache.demangleCache[mangled]; !exists {
		cache.demangleCache[mangled] = demangled
	}
	cache.hitCount[mangled]++
	cache.mu.Unlock()
	return demangled
}

// DemangleCacheStats returns statistics about the demangle cache.
func DemangleCacheStats() (totalSymbols int, cacheHits int, topSymbols []string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	type symbolHit struct {
		symbol string
		count  int
	}
	symbols := make([]symbolHit, 0, len(cache.hitCount))
	totalHits := 0
	for sym, count := range cache.hitCount {
		totalHits += count
		symbols = append(symbols, symbolHit{sym, count})
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].count != symbols[j].count {
			return symbols[i].count > symbols[j].count
		}
		return symbols[i].symbol < symbols[j].symbol
	})

	var top []string
	for i := 0; i < 5 && i < len(symbols); i++ {
		top = append(top, fmt.Sprintf("%s (%d hits)", symbols[i].symbol, symbols[i].count))
	}
	return len(cache.demangleCache), totalHits - len(cache.demangleCache), top
}

// ScanFunctions lists the functions of im worth hooking: named, outside the
// PLT, and not compiler or libc plumbing.
func ScanFunctions(im *elfx.Image) SymbolScanResult {
	var res SymbolScanResult
	for _, fn := range im.Funcs {
		if fn.Name == "" || strings.HasPrefix(fn.Name, "__") || im.IsPLTEntry(fn.Addr) {
			continue
		}
		if IsPlumbing(fn.Name) {
			continue
		}
		res.Funcs = append(res.Funcs, fn)
		if IsEntryPoint(fn.Name) {
			res.Entrypoints = append(res.Entrypoints, fn)
		}
	}
	return res
}

// IsEntryPoint reports whether name is a program or library entry point.
func IsEntryPoint(name string) bool {
	switch name {
	case "main", "_start", "_init", "JNI_OnLoad", "DllMain":
		return true
	}
	return false
}

// IsPlumbing reports whether name is a compiler-generated helper that is
// never a hook target.
func IsPlumbing(name string) bool {
	switch name {
	case "_fini", "deregister_tm_clones", "register_tm_clones", "frame_dummy", "_dl_relocate_static_pie":
		return true
	}
	return strings.HasPrefix(name, "__x86.get_pc_thunk")
}

// SymLookup returns an x86asm symbol lookup over im with PLT names demangled.
func SymLookup(im *elfx.Image) func(uint64) (string, uint64) {
	if im == nil {
		return nil
	}
	return func(va uint64) (string, uint64) {
		name, base := im.Lookup(va)
		if sym, ok := strings.CutSuffix(name, "@plt"); ok {
			name = CachedDemangle(sym) + "@plt"
		}
		return name, base
	}
}
