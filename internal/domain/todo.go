package domain

// TodoItem is one entry of the shared to-do list. CreatedAt is unix millis.
type TodoItem struct {
	Text      string `json:"text"`
	AddedBy   string `json:"addedBy"`
	CreatedAt int64  `json:"createdAt"`
}

// TodoList is stored newest first.
type TodoList struct {
	Items []TodoItem `json:"items"`
}

func (l TodoList) Clone() TodoList {
	items := make([]TodoItem, len(l.Items))
	copy(items, l.Items)
	return TodoList{Items: items}
}
