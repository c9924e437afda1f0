package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/models"
	"conferencebot/internal/storage/stubs"
)

// recordingSender captures everything the bot would send to Telegram
type recordingSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failSend bool
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSend {
		return tgbotapi.Message{}, errors.New("network down")
	}
	r.sent = append(r.sent, c)
	return tgbotapi.Message{MessageID: len(r.sent)}, nil
}

func (r *recordingSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns the text of every sent message and text edit
func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *recordingSender) lastText() string {
	texts := r.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (r *recordingSender) callbackAnswers() []tgbotapi.CallbackConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range r.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

const (
	testUserID = int64(123)
	testChatID = int64(123)
)

func newTestBot(db *stubs.MockDB) (*Bot, *recordingSender) {
	sender := &recordingSender{}
	return &Bot{
		api:          nil, // Not needed for internal logic tests
		sender:       sender,
		db:           db,
		catalog:      catalog.New(catalog.Sample()),
		allowedUsers: map[int64]bool{},
		states:       make(map[int64]*ConversationState),
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}, sender
}

func commandMessage(userID int64, text string) *tgbotapi.Message {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		length = i
	}
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, FirstName: "Ada"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func callbackQuery(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      fmt.Sprintf("cb-%s", data),
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}
}

func mustPrefs(t *testing.T, db *stubs.MockDB, userID int64) models.UserPreferences {
	t.Helper()
	prefs, err := db.GetPreferences(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to get preferences: %v", err)
	}
	return prefs
}

func TestBot_SubscribeUnsubscribe(t *testing.T) {
	db := stubs.NewMockDB()
	bot, sender := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/subscribe"))
	if !mustPrefs(t, db, testUserID).Subscribed {
		t.Fatal("Expected user to be subscribed")
	}
	if !strings.Contains(sender.lastText(), "now subscribed") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	bot.handleMessage(commandMessage(testUserID, "/unsubscribe"))
	prefs := mustPrefs(t, db, testUserID)
	if prefs.Subscribed {
		t.Fatal("Expected user to be unsubscribed")
	}
	if !prefs.Countries.IsAny() || !prefs.Topics.IsAny() {
		t.Error("Expected subscription changes to keep the filters")
	}
	if !strings.Contains(sender.lastText(), "unsubscribed") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
}

func TestBot_ListDefaultUserSeesEverything(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/list"))

	reply := sender.lastText()
	if !strings.Contains(reply, "(5 found)") {
		t.Errorf("Expected 5 conferences, got %q", reply)
	}
	for _, conf := range catalog.Sample() {
		if !strings.Contains(reply, conf.Name) {
			t.Errorf("Expected %q in the list", conf.Name)
		}
	}
}

func TestBot_SearchIsAliasOfList(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/search"))

	if !strings.Contains(sender.lastText(), "(5 found)") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
}

func TestBot_ListNoMatches(t *testing.T) {
	db := stubs.NewMockDB()
	db.SavePreferences(context.Background(), models.UserPreferences{
		UserID:    testUserID,
		Countries: models.Specific("Spain"),
		Topics:    models.AnySelection(),
	})
	bot, sender := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/list"))

	if !strings.Contains(sender.lastText(), "No conferences found") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
}

func TestBot_ListIsCapped(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	var confs []models.Conference
	for i := 0; i < 12; i++ {
		confs = append(confs, models.Conference{
			ID:      fmt.Sprintf("c%02d", i),
			Name:    fmt.Sprintf("Conf %02d", i),
			Date:    fmt.Sprintf("2026-05-%02d", i+1),
			Country: "USA",
			Topics:  []string{"web"},
		})
	}
	bot.catalog = catalog.New(confs)

	bot.handleMessage(commandMessage(testUserID, "/list"))

	reply := sender.lastText()
	if !strings.Contains(reply, "Conf 09") || strings.Contains(reply, "Conf 10") {
		t.Errorf("Expected the first 10 conferences only, got %q", reply)
	}
	if !strings.Contains(reply, "...and 2 more conferences") {
		t.Errorf("Expected overflow note, got %q", reply)
	}
}

func TestBot_Upcoming(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/upcoming"))

	reply := sender.lastText()
	for _, name := range []string{"Agile Testing Days", "DevOps World", "QA Global Summit"} {
		if !strings.Contains(reply, name) {
			t.Errorf("Expected %q within 90 days, got %q", name, reply)
		}
	}
	for _, name := range []string{"Cloud Native Conference", "Security & Testing Summit"} {
		if strings.Contains(reply, name) {
			t.Errorf("Did not expect %q within 90 days", name)
		}
	}

	bot.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }
	bot.handleMessage(commandMessage(testUserID, "/upcoming"))
	if !strings.Contains(sender.lastText(), "No conferences scheduled") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
}

func TestBot_FilterConversation(t *testing.T) {
	db := stubs.NewMockDB()
	bot, sender := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/filter"))

	state, ok := bot.getState(testUserID)
	if !ok {
		t.Fatal("Expected conversation state to be created")
	}
	if state.Command != "filter" || state.Step != stepCountry {
		t.Fatalf("Unexpected state: %+v", state)
	}
	if !state.Countries.Empty() {
		t.Error("Expected an empty working set")
	}

	for _, data := range []string{"country:USA", "country:Poland", "country:done"} {
		bot.handleCallbackQuery(callbackQuery(testUserID, data))
	}

	state, _ = bot.getState(testUserID)
	if state.Step != stepTopic {
		t.Fatalf("Expected topic step, got %d", state.Step)
	}
	if !state.Countries.Equal(models.Specific("USA", "Poland")) {
		t.Errorf("Unexpected countries: %v", state.Countries)
	}

	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:devops"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:done"))

	if _, ok := bot.getState(testUserID); ok {
		t.Error("Expected conversation to be finished")
	}
	prefs := mustPrefs(t, db, testUserID)
	if !prefs.Countries.Equal(models.Specific("USA", "Poland")) {
		t.Errorf("Unexpected stored countries: %v", prefs.Countries)
	}
	if !prefs.Topics.Equal(models.Specific("devops")) {
		t.Errorf("Unexpected stored topics: %v", prefs.Topics)
	}
	if !strings.Contains(sender.lastText(), "Filters Saved") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	// Every button press is answered exactly once
	if got := len(sender.callbackAnswers()); got != 5 {
		t.Errorf("Expected 5 callback answers, got %d", got)
	}

	bot.handleMessage(commandMessage(testUserID, "/list"))
	reply := sender.lastText()
	if !strings.Contains(reply, "(1 found)") || !strings.Contains(reply, "DevOps World") {
		t.Errorf("Unexpected list after filtering: %q", reply)
	}
}

func TestBot_FilterDoneWithNothingSelectedKeepsEverything(t *testing.T) {
	db := stubs.NewMockDB()
	db.SavePreferences(context.Background(), models.UserPreferences{
		UserID:    testUserID,
		Countries: models.Specific("UK"),
		Topics:    models.Specific("ai"),
	})
	bot, _ := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:done"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:done"))

	prefs := mustPrefs(t, db, testUserID)
	if !prefs.Countries.IsAny() || !prefs.Topics.IsAny() {
		t.Errorf("Expected Any/Any, got %v / %v", prefs.Countries, prefs.Topics)
	}
}

func TestBot_FilterAllThenValueReplacesAll(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:all"))

	state, _ := bot.getState(testUserID)
	if !state.Countries.IsAny() {
		t.Fatal("Expected Any after pressing All")
	}

	bot.handleCallbackQuery(callbackQuery(testUserID, "country:uk"))
	state, _ = bot.getState(testUserID)
	if !state.Countries.Equal(models.Specific("UK")) {
		t.Errorf("Expected {UK}, got %v", state.Countries)
	}

	// Pressing the same value again empties the set
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:UK"))
	state, _ = bot.getState(testUserID)
	if !state.Countries.Empty() {
		t.Errorf("Expected empty set, got %v", state.Countries)
	}

	answers := sender.callbackAnswers()
	if len(answers) == 0 || answers[len(answers)-1].Text != "Selected: None" {
		t.Errorf("Unexpected toast: %+v", answers)
	}
}

func TestBot_FilterIgnoresUnknownAndOutOfStepButtons(t *testing.T) {
	bot, _ := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:Atlantis"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:devops"))

	state, _ := bot.getState(testUserID)
	if state.Step != stepCountry || !state.Countries.Empty() || !state.Topics.Empty() {
		t.Errorf("Expected untouched state, got %+v", state)
	}
}

func TestBot_FilterKeepsSubscription(t *testing.T) {
	db := stubs.NewMockDB()
	bot, _ := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/subscribe"))
	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:Germany"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:done"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:all"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:done"))

	prefs := mustPrefs(t, db, testUserID)
	if !prefs.Subscribed {
		t.Error("Expected subscription to survive a filter change")
	}
	if !prefs.Countries.Equal(models.Specific("Germany")) || !prefs.Topics.IsAny() {
		t.Errorf("Unexpected filters: %v / %v", prefs.Countries, prefs.Topics)
	}
}

func TestBot_CommandInterruptsConversation(t *testing.T) {
	db := stubs.NewMockDB()
	bot, sender := newTestBot(db)

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:USA"))
	bot.handleMessage(commandMessage(testUserID, "/list"))

	if _, ok := bot.getState(testUserID); ok {
		t.Fatal("Expected /list to end the conversation")
	}

	// Late button presses are answered and ignored
	saves := db.Saves
	answered := len(sender.callbackAnswers())
	bot.handleCallbackQuery(callbackQuery(testUserID, "country:done"))
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:done"))

	if db.Saves != saves {
		t.Error("Expected no writes from stale buttons")
	}
	if got := len(sender.callbackAnswers()); got != answered+2 {
		t.Errorf("Expected stale callbacks to be answered, got %d answers", got-answered)
	}
	if !mustPrefs(t, db, testUserID).Countries.IsAny() {
		t.Error("Expected filters to stay unchanged")
	}
}

func TestBot_Cancel(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/cancel"))
	if sender.lastText() != "Nothing to cancel." {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleMessage(commandMessage(testUserID, "/cancel"))
	if !strings.Contains(sender.lastText(), "cancelled") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
	if _, ok := bot.getState(testUserID); ok {
		t.Error("Expected conversation to be cleared")
	}
}

func TestBot_TextDuringConversation(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	plain := &tgbotapi.Message{
		From: &tgbotapi.User{ID: testUserID},
		Chat: &tgbotapi.Chat{ID: testChatID},
		Text: "Germany please",
	}

	bot.handleMessage(plain)
	if len(sender.texts()) != 0 {
		t.Error("Expected plain text outside a conversation to be ignored")
	}

	bot.handleMessage(commandMessage(testUserID, "/filter"))
	bot.handleMessage(plain)
	if !strings.Contains(sender.lastText(), "use the buttons") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
	if state, ok := bot.getState(testUserID); !ok || state.Step != stepCountry {
		t.Error("Expected conversation to continue")
	}
}

func TestBot_UnknownCommandRepliesWithHelp(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/frobnicate"))

	reply := sender.lastText()
	if !strings.HasPrefix(reply, "Unknown command.") || !strings.Contains(reply, "/filter") {
		t.Errorf("Unexpected reply: %q", reply)
	}
}

func TestBot_StartAndMyFilters(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	bot.handleMessage(commandMessage(testUserID, "/start"))
	if !strings.Contains(sender.lastText(), "Welcome to Conference Bot, Ada") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	bot.handleMessage(commandMessage(testUserID, "/myfilters"))
	reply := sender.lastText()
	if !strings.Contains(reply, catalog.AllCountriesLabel) || !strings.Contains(reply, catalog.AllTopicsLabel) {
		t.Errorf("Expected default filters, got %q", reply)
	}
	if !strings.Contains(reply, "Inactive") {
		t.Errorf("Expected inactive notifications, got %q", reply)
	}
}

// panickingDB blows up on reads to exercise panic recovery
type panickingDB struct {
	*stubs.MockDB
}

func (p panickingDB) GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	panic("storage exploded")
}

func TestBot_PanicsAreRecovered(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())
	bot.db = panickingDB{stubs.NewMockDB()}

	bot.handleMessage(commandMessage(testUserID, "/list"))
	if !strings.Contains(sender.lastText(), "An error occurred") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	bot.setState(testUserID, ConversationState{Command: "filter", Step: stepTopic, Countries: models.AnySelection()})
	bot.handleCallbackQuery(callbackQuery(testUserID, "topic:done"))
	if len(sender.callbackAnswers()) != 1 {
		t.Error("Expected the callback to be answered despite the panic")
	}

	// The bot keeps working afterwards
	bot.db = stubs.NewMockDB()
	bot.handleMessage(commandMessage(testUserID, "/list"))
	if !strings.Contains(sender.lastText(), "(5 found)") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}
}

func TestBot_SendFailuresAreNotFatal(t *testing.T) {
	db := stubs.NewMockDB()
	bot, sender := newTestBot(db)
	sender.failSend = true

	bot.handleMessage(commandMessage(testUserID, "/subscribe"))

	if !mustPrefs(t, db, testUserID).Subscribed {
		t.Error("Expected the subscription to be stored even if the reply fails")
	}
}

func TestBot_Allowlist(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())
	bot.allowedUsers = map[int64]bool{1: true}

	bot.HandleUpdate(tgbotapi.Update{Message: commandMessage(2, "/filter")})
	if _, ok := bot.getState(2); ok {
		t.Error("Expected unauthorized user to be ignored")
	}
	if !strings.Contains(sender.lastText(), "not authorized") {
		t.Errorf("Unexpected reply: %q", sender.lastText())
	}

	bot.HandleUpdate(tgbotapi.Update{Message: commandMessage(1, "/filter")})
	if _, ok := bot.getState(1); !ok {
		t.Error("Expected allowed user to start a conversation")
	}

	// Empty allowlist lets everyone in
	bot.allowedUsers = map[int64]bool{}
	bot.HandleUpdate(tgbotapi.Update{Message: commandMessage(2, "/filter")})
	if _, ok := bot.getState(2); !ok {
		t.Error("Expected any user to be allowed with an empty allowlist")
	}
}

func TestBot_NotifyConferences(t *testing.T) {
	bot, sender := newTestBot(stubs.NewMockDB())

	if err := bot.NotifyConferences(testChatID, catalog.Sample()[:2]); err != nil {
		t.Fatalf("NotifyConferences failed: %v", err)
	}
	reply := sender.lastText()
	if !strings.Contains(reply, "New conferences") || !strings.Contains(reply, "DevOps World") {
		t.Errorf("Unexpected notification: %q", reply)
	}

	sender.failSend = true
	if err := bot.NotifyConferences(testChatID, catalog.Sample()); err == nil {
		t.Error("Expected delivery error")
	}

	bot.sender = nil
	if err := bot.NotifyConferences(testChatID, catalog.Sample()); err == nil {
		t.Error("Expected error without a Telegram API")
	}
}

func TestSelectionKeyboard(t *testing.T) {
	kb := selectionKeyboard(countryPrefix, catalog.Countries, catalog.AllCountriesLabel, models.Specific("USA"))

	rows := kb.InlineKeyboard
	// 11 countries in pairs, then All and Done
	if len(rows) != 8 {
		t.Fatalf("Expected 8 rows, got %d", len(rows))
	}
	first := rows[0][0]
	if !strings.HasPrefix(first.Text, "✔️") || *first.CallbackData != "country:USA" {
		t.Errorf("Unexpected first button: %s / %s", first.Text, *first.CallbackData)
	}
	if strings.HasPrefix(rows[6][0].Text, "✔️") {
		t.Error("All should not be marked for a specific selection")
	}
	if *rows[7][0].CallbackData != "country:done" {
		t.Errorf("Expected Done last, got %s", *rows[7][0].CallbackData)
	}

	kb = selectionKeyboard(topicPrefix, catalog.Topics, catalog.AllTopicsLabel, models.AnySelection())
	rows = kb.InlineKeyboard
	if !strings.HasPrefix(rows[len(rows)-2][0].Text, "✔️") {
		t.Error("Expected All to be marked for Any")
	}
	if strings.HasPrefix(rows[0][0].Text, "✔️") {
		t.Error("Individual topics should not be marked for Any")
	}
}

// overlapDB records how many reads of one user run at the same time
type overlapDB struct {
	*stubs.MockDB
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (o *overlapDB) GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	o.mu.Lock()
	o.active++
	if o.active > o.maxSeen {
		o.maxSeen = o.active
	}
	o.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	o.mu.Lock()
	o.active--
	o.mu.Unlock()
	return o.MockDB.GetPreferences(ctx, userID)
}

func TestBot_UpdatesOfOneUserAreSerialized(t *testing.T) {
	bot, _ := newTestBot(stubs.NewMockDB())
	db := &overlapDB{MockDB: stubs.NewMockDB()}
	bot.db = db

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		cmd := "/subscribe"
		if i%2 == 1 {
			cmd = "/unsubscribe"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.HandleUpdate(tgbotapi.Update{Message: commandMessage(testUserID, cmd)})
		}()
	}
	wg.Wait()

	if db.maxSeen != 1 {
		t.Errorf("Expected updates of one user to run one at a time, saw %d in parallel", db.maxSeen)
	}
	if db.Saves != 20 {
		t.Errorf("Expected 20 saves, got %d", db.Saves)
	}
}
