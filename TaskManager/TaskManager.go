package TaskManager

import (
	"sync"

	"github.com/google/uuid"
)

const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusSkipped    = "Skipped"
	StatusDone       = "Done"
	StatusFailed     = "Failed"
)

type TaskList struct {
	tasks []WashokuTask
	sync.Mutex
}

type WashokuTask struct {
	TaskUID  string      `json:"task_uid"`
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	Returned interface{} `json:"output"`
	Error    string      `json:"error,omitempty"`
	Done     bool        `json:"done"`
}

func NewTaskList() *TaskList {
	return &TaskList{tasks: make([]WashokuTask, 0)}
}

func (tl *TaskList) NewTask(taskType string, name string) string {
	tl.Lock()
	defer tl.Unlock()

	task := WashokuTask{
		TaskUID:  uuid.New().String(),
		Type:     taskType,
		Name:     name,
		Status:   StatusPending,
		Returned: "",
	}
	tl.tasks = append(tl.tasks, task)

	return task.TaskUID
}

func (tl *TaskList) update(taskUID string, fn func(*WashokuTask)) {
	tl.Lock()
	defer tl.Unlock()

	for i := range tl.tasks {
		if tl.tasks[i].TaskUID == taskUID {
			fn(&tl.tasks[i])
			return
		}
	}
}

func (tl *TaskList) SetTaskStatus(taskUID string, status string) {
	tl.update(taskUID, func(t *WashokuTask) {
		t.Status = status
	})
}

func (tl *TaskList) SetTaskOutput(taskUID string, output interface{}) {
	tl.update(taskUID, func(t *WashokuTask) {
		t.Returned = output
	})
}

// SetTaskDone finishes a task with the given terminal status.
func (tl *TaskList) SetTaskDone(taskUID string, status string) {
	tl.update(taskUID, func(t *WashokuTask) {
		t.Status = status
		t.Done = true
	})
}

func (tl *TaskList) SetTaskFailed(taskUID string, err error) {
	tl.update(taskUID, func(t *WashokuTask) {
		t.Status = StatusFailed
		t.Error = err.Error()
		t.Done = true
	})
}

// GetTasks returns a snapshot of every task in creation order.
func (tl *TaskList) GetTasks() []WashokuTask {
	tl.Lock()
	defer tl.Unlock()

	out := make([]WashokuTask, len(tl.tasks))
	copy(out, tl.tasks)
	return out
}

// CountByStatus tallies tasks per status.
func (tl *TaskList) CountByStatus() map[string]int {
	tl.Lock()
	defer tl.Unlock()

	counts := make(map[string]int)
	for _, task := range tl.tasks {
		counts[task.Status]++
	}
	return counts
}
