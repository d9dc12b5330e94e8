// Package library holds the levelled example snippets offered to learners and
// the heuristic explanation shown to beginner sessions.
package library

import "fmt"

// Example is one levelled snippet.
type Example struct {
	Slug  string `json:"slug"`
	Level int    `json:"level"`
	Title string `json:"title"`
	Code  string `json:"code"`
}

// Label renders the example the way it is listed to learners, e.g. "Level01: Hello World".
func (e Example) Label() string {
	return fmt.Sprintf("Level%02d: %s", e.Level, e.Title)
}

var examples = []Example{
	{
		Slug:  "hello-world",
		Level: 1,
		Title: "Hello World",
		Code:  `print("Hello, World!")`,
	},
	{
		Slug:  "fibonacci",
		Level: 2,
		Title: "Fibonacci",
		Code: `def fibonacci(n):
    a, b = 0, 1
    for _ in range(n):
        print(a, end=" ")
        a, b = b, a + b

fibonacci(10)`,
	},
	{
		Slug:  "sorting",
		Level: 3,
		Title: "Sorting",
		Code: `def sort_example():
    arr = [5, 2, 9, 1]
    arr.sort()
    print("Sorted:", arr)

sort_example()`,
	},
	{
		Slug:  "bubble-sort",
		Level: 4,
		Title: "Bubble Sort",
		Code: `def bubble_sort(arr):
    n = len(arr)
    for i in range(n):
        for j in range(0, n-i-1):
            if arr[j] > arr[j+1]:
                arr[j], arr[j+1] = arr[j+1], arr[j]
    return arr

numbers = [64, 34, 25, 12, 22, 11, 90]
print("Original array:", numbers)
print("Sorted array:", bubble_sort(numbers.copy()))`,
	},
	{
		Slug:  "prime-numbers",
		Level: 5,
		Title: "Prime no",
		Code: `def is_prime(n):
    if n < 2:
        return False
    for i in range(2, int(n**0.5)+1):
        if n % i == 0:
            return False
    return True

for i in range(20):
    if is_prime(i):
        print(i, end=" ")`,
	},
	{
		Slug:  "tower-of-hanoi",
		Level: 6,
		Title: "Tower of Hanoi",
		Code: `def hanoi(n, source, target, auxiliary):
    if n == 1:
        print(f"Move disk 1 from {source} to {target}")
        return
    hanoi(n-1, source, auxiliary, target)
    print(f"Move disk {n} from {source} to {target}")
    hanoi(n-1, auxiliary, target, source)

hanoi(3, 'A', 'C', 'B')`,
	},
	{
		Slug:  "object-oriented",
		Level: 7,
		Title: "Object-Oriented",
		Code: `class Person:
    def __init__(self, name):
        self.name = name

    def greet(self):
        print(f"Hello, my name is {self.name}.")

p = Person("Alice")
p.greet()`,
	},
	{
		Slug:  "binary-search-tree",
		Level: 8,
		Title: "Binary Search Tree",
		Code: `class Node:
    def __init__(self, key):
        self.left = None
        self.right = None
        self.val = key

def inorder(root):
    if root:
        inorder(root.left)
        print(root.val, end=" ")
        inorder(root.right)

r = Node(50)
r.left = Node(30)
r.right = Node(70)
inorder(r)`,
	},
}

// Default is the code a new session starts with.
const Default = `print("Hello, World!")`

// All returns the examples ordered by level.
func All() []Example {
	out := make([]Example, len(examples))
	copy(out, examples)
	return out
}

// Get looks an example up by slug.
func Get(slug string) (Example, bool) {
	for _, e := range examples {
		if e.Slug == slug {
			return e, true
		}
	}
	return Example{}, false
}
