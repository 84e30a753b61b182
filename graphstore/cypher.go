// Package graphstore implements GraphStore (spec §4.3): the property-graph
// persistence layer for Entities, TextUnits, Documents, Relations, and
// community membership edges.
//
// cypher.go is adapted directly from rag/store/falkordb_internal.go's Graph
// wrapper around FalkorDB's "GRAPH.QUERY ... --compact" command, minus the
// tablewriter-based PrettyPrint debug helper (github.com/olekukonko/tablewriter
// is not declared anywhere in the teacher's go.mod, and no SPEC_FULL.md
// component needs pretty-printed query output).
package graphstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// cypherGraph issues Cypher queries against a single named FalkorDB graph
// over a shared redis connection.
type cypherGraph struct {
	name string
	conn redis.UniversalClient
}

func newCypherGraph(name string, conn redis.UniversalClient) *cypherGraph {
	return &cypherGraph{name: name, conn: conn}
}

// queryResult is the parsed shape of a compact-mode GRAPH.QUERY response.
type queryResult struct {
	Header     []string
	Results    [][]interface{}
	Statistics []string
}

// query executes q against the graph and parses the compact-mode response,
// which is either a 2-element [results, stats] or 3-element
// [header, results, stats] top-level array depending on whether the query
// returns columns.
func (g *cypherGraph) query(ctx context.Context, q string) (queryResult, error) {
	qr := queryResult{}

	res, err := g.conn.Do(ctx, "GRAPH.QUERY", g.name, q, "--compact").Result()
	if err != nil {
		return qr, err
	}

	r, ok := res.([]interface{})
	if !ok {
		return qr, fmt.Errorf("graphstore: unexpected response type %T", res)
	}

	switch len(r) {
	case 3:
		if header, ok := r[0].([]interface{}); ok {
			qr.Header = make([]string, len(header))
			for i, h := range header {
				qr.Header[i] = fmt.Sprint(h)
			}
		}
		qr.Results = parseRows(r[1])
		qr.Statistics = parseStats(r[2])
	case 2:
		qr.Results = parseRows(r[0])
		qr.Statistics = parseStats(r[1])
	default:
		return qr, fmt.Errorf("graphstore: unexpected response length %d", len(r))
	}

	return qr, nil
}

func parseRows(v interface{}) [][]interface{} {
	rows, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		if rVals, ok := row.([]interface{}); ok {
			out[i] = rVals
		}
	}
	return out
}

func parseStats(v interface{}) []string {
	stats, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = fmt.Sprint(s)
	}
	return out
}

// parseNodeProps extracts the first label and the properties from a raw
// node response element: [internalID, labels, [[key,value],...]].
func parseNodeProps(obj interface{}) (label string, props map[string]interface{}, ok bool) {
	vals, isSlice := obj.([]interface{})
	if !isSlice || len(vals) < 3 {
		return "", nil, false
	}

	if labels, ok := vals[1].([]interface{}); ok && len(labels) > 0 {
		label = asString(labels[0])
	}

	props = make(map[string]interface{})
	if pairs, ok := vals[2].([]interface{}); ok {
		for _, p := range pairs {
			pair, ok := p.([]interface{})
			if !ok || len(pair) != 2 {
				continue
			}
			key := asString(pair[0])
			val := pair[1]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			props[key] = val
		}
	}
	return label, props, true
}

// parseEdgeProps extracts (type, properties) from a raw edge response
// element: [internalID, type, srcID, dstID, [[key,value],...]].
func parseEdgeProps(obj interface{}) (relType string, props map[string]interface{}, ok bool) {
	vals, isSlice := obj.([]interface{})
	if !isSlice || len(vals) < 2 {
		return "", nil, false
	}
	relType = asString(vals[1])

	props = make(map[string]interface{})
	if len(vals) > 4 {
		if pairs, ok := vals[4].([]interface{}); ok {
			for _, p := range pairs {
				pair, ok := p.([]interface{})
				if !ok || len(pair) != 2 {
					continue
				}
				key := asString(pair[0])
				val := pair[1]
				if b, ok := val.([]byte); ok {
					val = string(b)
				}
				props[key] = val
			}
		}
	}
	return relType, props, true
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
