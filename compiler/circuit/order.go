package circuit

import "slices"

// ReversePostOrder orders the live gates so that, loops aside, every gate
// comes after its inputs. The depth-first walk follows use edges and starts
// from each input-less gate in id order.
func (c *Circuit) ReversePostOrder() []GateRef {
	visited := make([]bool, len(c.gates))
	post := make([]GateRef, 0, len(c.gates))

	type frame struct {
		ref  GateRef
		next int
	}
	var stack []frame

	for root := range c.Gates() {
		if root == c.dead || visited[root] || len(c.gates[root].ins) != 0 {
			continue
		}
		visited[root] = true
		stack = append(stack, frame{ref: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			uses := c.gates[top.ref].uses
			if top.next < len(uses) {
				user := uses[top.next].User
				top.next++
				if !visited[user] && !c.gates[user].deleted {
					visited[user] = true
					stack = append(stack, frame{ref: user})
				}
				continue
			}
			post = append(post, top.ref)
			stack = stack[:len(stack)-1]
		}
	}

	slices.Reverse(post)
	return post
}
