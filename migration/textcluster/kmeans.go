package textcluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ErrTooFewSamples is returned when there are fewer distinct samples than requested clusters.
var ErrTooFewSamples = errors.New("too few distinct samples for the requested number of clusters")

// KMeansOptions controls KMeans.
type KMeansOptions struct {
	// K is the number of clusters.
	K int

	// NInit is the number of independently seeded runs; the lowest-inertia run wins.
	NInit int

	// MaxIter bounds the Lloyd iterations of a single run.
	MaxIter int

	// Tol is the center-shift threshold, relative to the mean per-feature variance of the data.
	Tol float64

	// Seed fixes all random choices.
	Seed uint64
}

// DefaultKMeansOptions: k=5, 20 runs, 300 iterations, tol 1e-4, seed 42.
func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{
		K:       5,
		NInit:   20,
		MaxIter: 300,
		Tol:     1e-4,
		Seed:    42,
	}
}

// KMeansResult is the best run of KMeans.
type KMeansResult struct {
	// Labels[i] is the cluster of rows[i].
	Labels []int

	// Centroids are dense, one per cluster, over the vectorizer's columns.
	Centroids [][]float64

	// Inertia is the sum of squared distances of rows to their centroid.
	Inertia float64

	// Iterations is the number of Lloyd iterations of the winning run.
	Iterations int
}

// KMeans partitions sparse rows of width dim into opts.K clusters, minimizing inertia.
// Each run is seeded with k-means++; the best of opts.NInit runs is returned.
func KMeans(ctx context.Context, rows []Vector, dim int, opts KMeansOptions) (KMeansResult, error) {
	if opts.K <= 0 {
		return KMeansResult{}, fmt.Errorf("KMeans: k must be > 0, got %d", opts.K)
	}
	if opts.NInit <= 0 {
		opts.NInit = 1
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultKMeansOptions().MaxIter
	}
	if dim <= 0 {
		return KMeansResult{}, fmt.Errorf("KMeans: dim must be > 0, got %d", dim)
	}
	if d := distinctRows(rows, opts.K); d < opts.K {
		return KMeansResult{}, fmt.Errorf("KMeans: %w: %d distinct of %d samples, k=%d", ErrTooFewSamples, d, len(rows), opts.K)
	}

	km := &kmeans{
		rows:   rows,
		dim:    dim,
		k:      opts.K,
		sqNorm: make([]float64, len(rows)),
	}
	for i, r := range rows {
		km.sqNorm[i] = r.sqNorm()
	}
	tol := meanVariance(rows, dim) * opts.Tol

	seeds := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	var best KMeansResult
	for run := 0; run < opts.NInit; run++ {
		select {
		case <-ctx.Done():
			return KMeansResult{}, ctx.Err()
		default:
		}

		rng := rand.New(rand.NewPCG(seeds.Uint64(), seeds.Uint64()))
		res := km.run(km.seedPlusPlus(rng), opts.MaxIter, tol)
		if run == 0 || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

type kmeans struct {
	rows   []Vector
	dim    int
	k      int
	sqNorm []float64
}

// sqDist is ||rows[i] - c||^2 where cSq = ||c||^2.
func (km *kmeans) sqDist(i int, c []float64, cSq float64) float64 {
	d := km.sqNorm[i] + cSq - 2*km.rows[i].dotDense(c)
	if d < 0 {
		return 0
	}
	return d
}

func (km *kmeans) dense(i int) []float64 {
	c := make([]float64, km.dim)
	r := km.rows[i]
	for k, j := range r.Indices {
		c[j] = r.Values[k]
	}
	return c
}

// seedPlusPlus picks initial centers with greedy k-means++: each new center is the best of
// 2+ln(k) candidates sampled proportionally to their squared distance from the chosen centers.
func (km *kmeans) seedPlusPlus(rng *rand.Rand) [][]float64 {
	n := len(km.rows)
	trials := 2 + int(math.Log(float64(km.k)))

	centers := make([][]float64, 0, km.k)
	first := km.dense(rng.IntN(n))
	centers = append(centers, first)

	closest := make([]float64, n)
	firstSq := floats.Dot(first, first)
	for i := range km.rows {
		closest[i] = km.sqDist(i, first, firstSq)
	}
	pot := floats.Sum(closest)

	cumsum := make([]float64, n)
	for len(centers) < km.k {
		floats.CumSum(cumsum, closest)

		bestPot := math.Inf(1)
		var bestID int
		var bestDist []float64
		for t := 0; t < trials; t++ {
			target := rng.Float64() * pot
			cand := sort.SearchFloat64s(cumsum, target)
			if cand >= n {
				cand = n - 1
			}
			c := km.dense(cand)
			cSq := floats.Dot(c, c)

			dist := make([]float64, n)
			for i := range km.rows {
				dist[i] = math.Min(closest[i], km.sqDist(i, c, cSq))
			}
			if p := floats.Sum(dist); p < bestPot {
				bestPot, bestID, bestDist = p, cand, dist
			}
		}
		centers = append(centers, km.dense(bestID))
		closest = bestDist
		pot = bestPot
	}
	return centers
}

// run performs Lloyd iterations from the given centers.
func (km *kmeans) run(centers [][]float64, maxIter int, tol float64) KMeansResult {
	n := len(km.rows)
	labels := make([]int, n)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}

	strict := false
	iter := 0
	for iter < maxIter {
		iter++
		dists := km.assign(centers, labels)
		next := km.update(centers, labels, dists)

		var shift float64
		for c := range centers {
			d := floats.Distance(centers[c], next[c], 2)
			shift += d * d
		}
		centers = next

		if equalInts(labels, prev) {
			strict = true
			break
		}
		if shift <= tol {
			break
		}
		copy(prev, labels)
	}
	if !strict {
		// Make labels consistent with the final centers.
		km.assign(centers, labels)
	}

	var inertia float64
	for i := range km.rows {
		c := centers[labels[i]]
		inertia += km.sqDist(i, c, floats.Dot(c, c))
	}
	return KMeansResult{
		Labels:     labels,
		Centroids:  centers,
		Inertia:    inertia,
		Iterations: iter,
	}
}

// assign writes the nearest center of every row into labels and returns each row's squared distance.
func (km *kmeans) assign(centers [][]float64, labels []int) []float64 {
	cSq := make([]float64, len(centers))
	for c := range centers {
		cSq[c] = floats.Dot(centers[c], centers[c])
	}
	dists := make([]float64, len(km.rows))
	for i := range km.rows {
		best, bestD := 0, math.Inf(1)
		for c := range centers {
			if d := km.sqDist(i, centers[c], cSq[c]); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
		dists[i] = bestD
	}
	return dists
}

// update returns the mean of each cluster. Empty clusters are moved onto the rows farthest from
// their current center, which are taken out of their own cluster's mean.
func (km *kmeans) update(centers [][]float64, labels []int, dists []float64) [][]float64 {
	sums := make([][]float64, km.k)
	counts := make([]int, km.k)
	for c := range sums {
		sums[c] = make([]float64, km.dim)
	}
	for i, r := range km.rows {
		s := sums[labels[i]]
		for k, j := range r.Indices {
			s[j] += r.Values[k]
		}
		counts[labels[i]]++
	}

	var empty []int
	for c := range counts {
		if counts[c] == 0 {
			empty = append(empty, c)
		}
	}
	if len(empty) > 0 {
		far := make([]int, len(km.rows))
		for i := range far {
			far[i] = i
		}
		sort.SliceStable(far, func(a, b int) bool { return dists[far[a]] > dists[far[b]] })

		for e, c := range empty {
			if e >= len(far) {
				break
			}
			i := far[e]
			old := labels[i]
			if counts[old] > 1 {
				r := km.rows[i]
				for k, j := range r.Indices {
					sums[old][j] -= r.Values[k]
				}
				counts[old]--
			}
			sums[c] = km.dense(i)
			counts[c] = 1
		}
	}

	next := make([][]float64, km.k)
	for c := range sums {
		if counts[c] == 0 {
			next[c] = append([]float64(nil), centers[c]...)
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
		next[c] = sums[c]
	}
	return next
}

// meanVariance is the mean over columns of the per-column variance.
func meanVariance(rows []Vector, dim int) float64 {
	if len(rows) == 0 || dim == 0 {
		return 0
	}
	sum := make([]float64, dim)
	sumSq := make([]float64, dim)
	for _, r := range rows {
		for k, j := range r.Indices {
			sum[j] += r.Values[k]
			sumSq[j] += r.Values[k] * r.Values[k]
		}
	}
	n := float64(len(rows))
	variances := make([]float64, dim)
	for j := range variances {
		mean := sum[j] / n
		variances[j] = sumSq[j]/n - mean*mean
	}
	return floats.Sum(variances) / float64(dim)
}

// distinctRows counts distinct rows, stopping once limit is reached.
func distinctRows(rows []Vector, limit int) int {
	seen := make(map[string]struct{}, limit)
	var b strings.Builder
	for _, r := range rows {
		b.Reset()
		for k, j := range r.Indices {
			b.WriteString(strconv.Itoa(j))
			b.WriteByte(':')
			b.WriteString(strconv.FormatUint(math.Float64bits(r.Values[k]), 16))
			b.WriteByte(';')
		}
		seen[b.String()] = struct{}{}
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
