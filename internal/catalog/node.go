// Package catalog fetches OS version catalog documents and turns them into
// flat records.
//
// Documents are decoded into Node, a typed JSON tree that keeps object member
// order. LowerKeys folds every object key to lower case so field lookup does
// not depend on the casing the upstream service happens to emit.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "scalar"
	}
}

// Member is one key/value pair of an object node.
type Member struct {
	Key   string
	Value Node
}

// Node is a JSON value: an object (ordered members), an array, or a scalar
// (string, json.Number, bool or nil).
type Node struct {
	Kind    Kind
	Members []Member
	Items   []Node
	Scalar  any
}

// Object builds an object node.
func Object(members ...Member) Node {
	return Node{Kind: KindObject, Members: members}
}

// Array builds an array node.
func Array(items ...Node) Node {
	return Node{Kind: KindArray, Items: items}
}

// String builds a string scalar node.
func String(s string) Node {
	return Node{Kind: KindScalar, Scalar: s}
}

// Get returns the value of key in an object node. When the key occurs more
// than once the last occurrence wins.
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != KindObject {
		return Node{}, false
	}
	for i := len(n.Members) - 1; i >= 0; i-- {
		if n.Members[i].Key == key {
			return n.Members[i].Value, true
		}
	}
	return Node{}, false
}

// Str returns the string held by a scalar node.
func (n Node) Str() (string, bool) {
	if n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Scalar.(string)
	return s, ok
}

// Equal reports whether two nodes are structurally identical.
func (n Node) Equal(o Node) bool {
	if n.Kind != o.Kind {
		return false
	}
	switch n.Kind {
	case KindObject:
		if len(n.Members) != len(o.Members) {
			return false
		}
		for i := range n.Members {
			if n.Members[i].Key != o.Members[i].Key || !n.Members[i].Value.Equal(o.Members[i].Value) {
				return false
			}
		}
		return true
	case KindArray:
		if len(n.Items) != len(o.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return n.Scalar == o.Scalar
	}
}

// LowerKeys returns a copy of n with every object key lower-cased at every
// depth. Arrays and scalars pass through unchanged. Keys that collide after
// folding keep the position of the first occurrence and the value of the
// last, matching how a decoder into a map treats duplicate keys.
func LowerKeys(n Node) Node {
	switch n.Kind {
	case KindObject:
		members := make([]Member, 0, len(n.Members))
		index := make(map[string]int, len(n.Members))
		for _, m := range n.Members {
			key := strings.ToLower(m.Key)
			value := LowerKeys(m.Value)
			if i, ok := index[key]; ok {
				members[i].Value = value
				continue
			}
			index[key] = len(members)
			members = append(members, Member{Key: key, Value: value})
		}
		return Node{Kind: KindObject, Members: members}
	case KindArray:
		items := make([]Node, len(n.Items))
		for i, item := range n.Items {
			items[i] = LowerKeys(item)
		}
		return Node{Kind: KindArray, Items: items}
	default:
		return n
	}
}

// UnmarshalJSON decodes any JSON value into the node, keeping member order.
func (n *Node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty JSON value")
	}

	switch data[0] {
	case '{':
		return n.decodeObject(data)
	case '[':
		return n.decodeArray(data)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*n = Node{Kind: KindScalar, Scalar: v}
		return nil
	}
}

func (n *Node) decodeObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}

	var members []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("object key is %T, not string", tok)
		}
		var value Node
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		members = append(members, Member{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*n = Node{Kind: KindObject, Members: members}
	return nil
}

func (n *Node) decodeArray(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}

	items := []Node{}
	for dec.More() {
		var item Node
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("index %d: %w", len(items), err)
		}
		items = append(items, item)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*n = Node{Kind: KindArray, Items: items}
	return nil
}

// MarshalJSON encodes the node back to JSON, keeping member order.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	switch n.Kind {
	case KindObject:
		buf.WriteByte('{')
		for i, m := range n.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			value, err := m.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			value, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
		buf.WriteByte(']')
	default:
		return json.Marshal(n.Scalar)
	}
	return buf.Bytes(), nil
}
